package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"invoice-recon/internal/queue"
)

// Processor is plugged into the asynq worker loop. Pipeline failures
// are recorded on the document and swallowed so asynq never redelivers;
// a document stuck in review with metadata.error set is the operator's
// signal to reprocess manually.
type Processor struct {
	pipeline *Pipeline
	logger   *zap.Logger
}

// NewProcessor constructs a queue processor around the pipeline.
func NewProcessor(pipeline *Pipeline, logger *zap.Logger) *Processor {
	return &Processor{pipeline: pipeline, logger: logger}
}

// Handler registers the document job handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessContractTask, p.handleContract)
	mux.HandleFunc(queue.ProcessInvoiceTask, p.handleInvoice)
	return mux
}

func (p *Processor) handleContract(ctx context.Context, task *asynq.Task) error {
	var payload queue.DocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode contract payload: %w", err)
	}

	start := time.Now()
	if err := p.pipeline.ProcessContract(ctx, payload.DocumentID); err != nil {
		p.logger.Error("Contract pipeline failed",
			zap.String("contract_id", payload.DocumentID),
			zap.Error(err))
		if recErr := p.pipeline.contracts.RecordFailure(payload.DocumentID, err.Error(), time.Since(start).Milliseconds()); recErr != nil {
			p.logger.Error("Failed to record contract failure",
				zap.String("contract_id", payload.DocumentID),
				zap.Error(recErr))
		}
	}
	return nil
}

func (p *Processor) handleInvoice(ctx context.Context, task *asynq.Task) error {
	var payload queue.DocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode invoice payload: %w", err)
	}

	start := time.Now()
	if err := p.pipeline.ProcessInvoice(ctx, payload.DocumentID); err != nil {
		p.logger.Error("Invoice pipeline failed",
			zap.String("invoice_id", payload.DocumentID),
			zap.Error(err))
		if recErr := p.pipeline.invoices.RecordFailure(payload.DocumentID, err.Error(), time.Since(start).Milliseconds()); recErr != nil {
			p.logger.Error("Failed to record invoice failure",
				zap.String("invoice_id", payload.DocumentID),
				zap.Error(recErr))
		}
	}
	return nil
}
