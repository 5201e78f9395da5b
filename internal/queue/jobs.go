package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// ProcessContractTask is scheduled each time a contract PDF is uploaded.
	ProcessContractTask = "contract:process"

	// ProcessInvoiceTask is scheduled each time an invoice PDF is uploaded.
	ProcessInvoiceTask = "invoice:process"
)

// DocumentPayload identifies the uploaded document a worker must process.
// Reprocessing the same document id is safe to repeat, so at-least-once
// delivery needs no further guarding.
type DocumentPayload struct {
	DocumentID string `json:"document_id"`
	FileKey    string `json:"file_key"`
	VendorID   string `json:"vendor_id"`
}

// Enqueuer submits document processing jobs.
type Enqueuer struct {
	client *asynq.Client
	logger *zap.Logger
}

// NewEnqueuer creates an enqueuer over a Redis-backed asynq client.
func NewEnqueuer(redisAddr string, logger *zap.Logger) *Enqueuer {
	return &Enqueuer{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		logger: logger,
	}
}

// EnqueueContract schedules contract extraction for an uploaded document.
func (e *Enqueuer) EnqueueContract(ctx context.Context, payload DocumentPayload) error {
	return e.enqueue(ctx, ProcessContractTask, payload)
}

// EnqueueInvoice schedules invoice processing for an uploaded document.
func (e *Enqueuer) EnqueueInvoice(ctx context.Context, payload DocumentPayload) error {
	return e.enqueue(ctx, ProcessInvoiceTask, payload)
}

func (e *Enqueuer) enqueue(ctx context.Context, taskType string, payload DocumentPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Pipeline failures are recorded on the document and surfaced for
	// manual reprocessing, never retried by the queue.
	task := asynq.NewTask(taskType, data)
	info, err := e.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(0),
		asynq.Timeout(10*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}

	e.logger.Info("Enqueued document job",
		zap.String("task", taskType),
		zap.String("job_id", info.ID),
		zap.String("document_id", payload.DocumentID))
	return nil
}

// Close releases the underlying queue connection.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
