package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
	"invoice-recon/internal/export"
	"invoice-recon/internal/models"
	"invoice-recon/internal/queue"
	"invoice-recon/internal/storage"
	"invoice-recon/internal/workflow"
	"invoice-recon/pkg/utils"
)

// maxUploadBytes caps uploaded document size.
const maxUploadBytes = 10 << 20

var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"text/plain":      true,
}

// VendorStore is the vendor persistence surface the handlers need.
type VendorStore interface {
	Create(vendor *models.Vendor) error
	GetByID(id string) (*models.Vendor, error)
	List() ([]*models.Vendor, error)
	ListRefs() ([]models.VendorRef, error)
	SoftDelete(id string) error
	Restore(id string) error
	Stats(id string) (*models.VendorStats, error)
}

// ContractStore is the contract persistence surface the handlers need.
type ContractStore interface {
	Create(contract *models.Contract) error
	GetByID(id string) (*models.Contract, error)
	ListByVendor(vendorID string) ([]*models.Contract, error)
	UpdateStatus(id string, status models.ContractStatus) error
	ActivateExclusive(vendorID, contractID string) error
}

// InvoiceStore is the invoice persistence surface the handlers need.
type InvoiceStore interface {
	Create(invoice *models.Invoice) error
	GetByID(id string) (*models.Invoice, error)
	ListByVendor(vendorID string) ([]*models.Invoice, error)
	UpdateStatus(id string, status models.InvoiceStatus) error
}

// ReportStore is the report persistence surface the handlers need.
type ReportStore interface {
	GetByInvoiceID(invoiceID string) (*models.ReconciliationReport, error)
	ListByVendor(vendorID string) ([]*models.ReconciliationReport, error)
}

// Canonicalizer resolves a display name to a canonical vendor name.
type Canonicalizer interface {
	Canonicalize(ctx context.Context, name string, known []models.VendorRef) (string, error)
}

// JobEnqueuer submits documents to the processing pipeline.
type JobEnqueuer interface {
	EnqueueContract(ctx context.Context, payload queue.DocumentPayload) error
	EnqueueInvoice(ctx context.Context, payload queue.DocumentPayload) error
}

// Handlers contains all HTTP request handlers.
type Handlers struct {
	vendors   VendorStore
	contracts ContractStore
	invoices  InvoiceStore
	reports   ReportStore
	blobs     storage.BlobStore
	jobs      JobEnqueuer
	matcher   Canonicalizer
	logger    *zap.Logger
}

// NewHandlers creates a Handlers instance over the given dependencies.
func NewHandlers(
	vendors VendorStore,
	contracts ContractStore,
	invoices InvoiceStore,
	reports ReportStore,
	blobs storage.BlobStore,
	jobs JobEnqueuer,
	matcher Canonicalizer,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		vendors:   vendors,
		contracts: contracts,
		invoices:  invoices,
		reports:   reports,
		blobs:     blobs,
		jobs:      jobs,
		matcher:   matcher,
		logger:    logger,
	}
}

// Response represents a standard JSON response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateVendorRequest is the body for vendor registration.
type CreateVendorRequest struct {
	Name                string `json:"name" binding:"required"`
	BusinessDescription string `json:"businessDescription"`
}

// ChangeStatusRequest carries a lifecycle trigger for a document.
type ChangeStatusRequest struct {
	Trigger string `json:"trigger" binding:"required"`
}

// UploadResponse acknowledges an accepted document upload.
type UploadResponse struct {
	ID      string `json:"id"`
	FileKey string `json:"fileKey"`
	Status  string `json:"status"`
}

// HealthCheck handles GET /health.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateVendor handles POST /api/vendors.
func (h *Handlers) CreateVendor(c *gin.Context) {
	var req CreateVendorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "name is required")
		return
	}
	if err := utils.ValidateVendorName(req.Name); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	known, err := h.vendors.ListRefs()
	if err != nil {
		h.writeError(c, "Failed to load vendors", err)
		return
	}

	canonical, err := h.matcher.Canonicalize(c.Request.Context(), req.Name, known)
	if err != nil {
		h.writeError(c, "Failed to canonicalize vendor name", err)
		return
	}

	vendor := &models.Vendor{
		Name:                strings.TrimSpace(req.Name),
		CanonicalName:       canonical,
		BusinessDescription: req.BusinessDescription,
		Active:              true,
	}
	if err := h.vendors.Create(vendor); err != nil {
		h.writeError(c, "Failed to create vendor", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: vendor})
}

// ListVendors handles GET /api/vendors.
func (h *Handlers) ListVendors(c *gin.Context) {
	vendors, err := h.vendors.List()
	if err != nil {
		h.writeError(c, "Failed to list vendors", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: vendors})
}

// GetVendor handles GET /api/vendors/:id.
func (h *Handlers) GetVendor(c *gin.Context) {
	vendor, err := h.vendors.GetByID(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get vendor", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: vendor})
}

// DeleteVendor handles DELETE /api/vendors/:id.
func (h *Handlers) DeleteVendor(c *gin.Context) {
	if err := h.vendors.SoftDelete(c.Param("id")); err != nil {
		h.writeError(c, "Failed to delete vendor", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RestoreVendor handles POST /api/vendors/:id/restore.
func (h *Handlers) RestoreVendor(c *gin.Context) {
	if err := h.vendors.Restore(c.Param("id")); err != nil {
		h.writeError(c, "Failed to restore vendor", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// GetVendorStats handles GET /api/vendors/:id/stats.
func (h *Handlers) GetVendorStats(c *gin.Context) {
	stats, err := h.vendors.Stats(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get vendor stats", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

// UploadContract handles POST /api/vendors/:id/contracts.
func (h *Handlers) UploadContract(c *gin.Context) {
	vendorID := c.Param("id")
	if _, err := h.vendors.GetByID(vendorID); err != nil {
		h.writeError(c, "Failed to load vendor", err)
		return
	}

	data, fileName, mimeType, ok := h.readUpload(c)
	if !ok {
		return
	}

	obj, err := h.blobs.Put(c.Request.Context(), data, fileName, mimeType, "contracts")
	if err != nil {
		h.writeError(c, "Failed to store contract file", err)
		return
	}

	contract := &models.Contract{
		ID:       uuid.New().String(),
		VendorID: vendorID,
		FileKey:  obj.Key,
		FileName: fileName,
		Status:   models.ContractStatusNeedsReview,
	}
	if err := h.contracts.Create(contract); err != nil {
		h.writeError(c, "Failed to create contract", err)
		return
	}

	payload := queue.DocumentPayload{DocumentID: contract.ID, FileKey: obj.Key, VendorID: vendorID}
	if err := h.jobs.EnqueueContract(c.Request.Context(), payload); err != nil {
		h.writeError(c, "Failed to enqueue contract processing", err)
		return
	}

	h.logger.Info("Contract upload accepted",
		zap.String("contract_id", contract.ID),
		zap.String("vendor_id", vendorID),
		zap.String("file_key", obj.Key),
	)

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    UploadResponse{ID: contract.ID, FileKey: obj.Key, Status: string(contract.Status)},
	})
}

// ListContracts handles GET /api/vendors/:id/contracts.
func (h *Handlers) ListContracts(c *gin.Context) {
	contracts, err := h.contracts.ListByVendor(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to list contracts", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: contracts})
}

// GetContract handles GET /api/contracts/:id.
func (h *Handlers) GetContract(c *gin.Context) {
	contract, err := h.contracts.GetByID(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get contract", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: contract})
}

// ChangeContractStatus handles PATCH /api/contracts/:id/status.
// Expiration is driven by the background sweeper, not this endpoint.
func (h *Handlers) ChangeContractStatus(c *gin.Context) {
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "trigger is required")
		return
	}

	contract, err := h.contracts.GetByID(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get contract", err)
		return
	}

	trigger := workflow.Trigger(strings.ToUpper(req.Trigger))
	if !workflow.ContractCanFire(workflow.State(contract.Status), trigger) {
		h.invalidTransition(c, string(contract.Status), req.Trigger)
		return
	}

	switch trigger {
	case workflow.TriggerActivate:
		err = h.contracts.ActivateExclusive(contract.VendorID, contract.ID)
	case workflow.TriggerDeactivate:
		err = h.contracts.UpdateStatus(contract.ID, models.ContractStatusInactive)
	case workflow.TriggerSendReview:
		err = h.contracts.UpdateStatus(contract.ID, models.ContractStatusNeedsReview)
	default:
		h.badRequest(c, "unsupported trigger: "+req.Trigger)
		return
	}
	if err != nil {
		h.writeError(c, "Failed to change contract status", err)
		return
	}

	updated, err := h.contracts.GetByID(contract.ID)
	if err != nil {
		h.writeError(c, "Failed to reload contract", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// UploadInvoice handles POST /api/invoices. The vendor_id form field is
// optional; unscoped uploads are routed to a vendor by the pipeline's
// name matcher.
func (h *Handlers) UploadInvoice(c *gin.Context) {
	vendorID := strings.TrimSpace(c.PostForm("vendor_id"))
	if vendorID != "" {
		if _, err := h.vendors.GetByID(vendorID); err != nil {
			h.writeError(c, "Failed to load vendor", err)
			return
		}
	}

	data, fileName, mimeType, ok := h.readUpload(c)
	if !ok {
		return
	}

	obj, err := h.blobs.Put(c.Request.Context(), data, fileName, mimeType, "invoices")
	if err != nil {
		h.writeError(c, "Failed to store invoice file", err)
		return
	}

	invoice := &models.Invoice{
		ID:       uuid.New().String(),
		VendorID: vendorID,
		FileKey:  obj.Key,
		FileName: fileName,
		Status:   models.InvoiceStatusPending,
	}
	if err := h.invoices.Create(invoice); err != nil {
		h.writeError(c, "Failed to create invoice", err)
		return
	}

	payload := queue.DocumentPayload{DocumentID: invoice.ID, FileKey: obj.Key, VendorID: vendorID}
	if err := h.jobs.EnqueueInvoice(c.Request.Context(), payload); err != nil {
		h.writeError(c, "Failed to enqueue invoice processing", err)
		return
	}

	h.logger.Info("Invoice upload accepted",
		zap.String("invoice_id", invoice.ID),
		zap.String("vendor_id", vendorID),
		zap.String("file_key", obj.Key),
	)

	c.JSON(http.StatusAccepted, Response{
		Success: true,
		Data:    UploadResponse{ID: invoice.ID, FileKey: obj.Key, Status: string(invoice.Status)},
	})
}

// ListInvoices handles GET /api/vendors/:id/invoices.
func (h *Handlers) ListInvoices(c *gin.Context) {
	invoices, err := h.invoices.ListByVendor(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to list invoices", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: invoices})
}

// GetInvoice handles GET /api/invoices/:id.
func (h *Handlers) GetInvoice(c *gin.Context) {
	invoice, err := h.invoices.GetByID(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get invoice", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// ApproveInvoice handles POST /api/invoices/:id/approve.
func (h *Handlers) ApproveInvoice(c *gin.Context) {
	h.fireInvoiceTrigger(c, workflow.TriggerApprove, models.InvoiceStatusApproved)
}

// RejectInvoice handles POST /api/invoices/:id/reject.
func (h *Handlers) RejectInvoice(c *gin.Context) {
	h.fireInvoiceTrigger(c, workflow.TriggerReject, models.InvoiceStatusRejected)
}

func (h *Handlers) fireInvoiceTrigger(c *gin.Context, trigger workflow.Trigger, target models.InvoiceStatus) {
	invoice, err := h.invoices.GetByID(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get invoice", err)
		return
	}

	if !workflow.InvoiceCanFire(workflow.State(invoice.Status), trigger) {
		h.invalidTransition(c, string(invoice.Status), trigger.String())
		return
	}

	if err := h.invoices.UpdateStatus(invoice.ID, target); err != nil {
		h.writeError(c, "Failed to update invoice status", err)
		return
	}

	invoice.Status = target
	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// GetReport handles GET /api/invoices/:id/report.
func (h *Handlers) GetReport(c *gin.Context) {
	report, err := h.reports.GetByInvoiceID(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get report", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: report})
}

// ListReports handles GET /api/vendors/:id/reports.
func (h *Handlers) ListReports(c *gin.Context) {
	reports, err := h.reports.ListByVendor(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to list reports", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: reports})
}

// ExportReport handles GET /api/invoices/:id/report/export and streams
// the report as an XLSX workbook.
func (h *Handlers) ExportReport(c *gin.Context) {
	invoice, err := h.invoices.GetByID(c.Param("id"))
	if err != nil {
		h.writeError(c, "Failed to get invoice", err)
		return
	}
	report, err := h.reports.GetByInvoiceID(invoice.ID)
	if err != nil {
		h.writeError(c, "Failed to get report", err)
		return
	}
	vendor, err := h.vendors.GetByID(invoice.VendorID)
	if err != nil {
		h.writeError(c, "Failed to load vendor", err)
		return
	}

	f, err := export.ReportWorkbook(vendor, invoice, report)
	if err != nil {
		h.writeError(c, "Failed to build report workbook", err)
		return
	}
	defer f.Close()

	h.streamWorkbook(c, f, fmt.Sprintf("reconciliation-%s.xlsx", invoice.ID))
}

// ExportVendorSummary handles GET /api/vendors/export.
func (h *Handlers) ExportVendorSummary(c *gin.Context) {
	vendors, err := h.vendors.List()
	if err != nil {
		h.writeError(c, "Failed to list vendors", err)
		return
	}

	f, err := export.VendorSummaryWorkbook(vendors)
	if err != nil {
		h.writeError(c, "Failed to build vendor workbook", err)
		return
	}
	defer f.Close()

	h.streamWorkbook(c, f, "vendor-summary.xlsx")
}

func (h *Handlers) streamWorkbook(c *gin.Context, f interface {
	WriteTo(io.Writer, ...excelize.Options) (int64, error)
}, name string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if _, err := f.WriteTo(c.Writer); err != nil {
		h.logger.Error("Failed to stream workbook", zap.String("file", name), zap.Error(err))
	}
}

// readUpload pulls the "file" part out of a multipart request, enforcing
// the size cap and the allowed document types.
func (h *Handlers) readUpload(c *gin.Context) (data []byte, fileName, mimeType string, ok bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		h.badRequest(c, "file is required")
		return nil, "", "", false
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Success: false,
			Error:   fmt.Sprintf("file exceeds %d byte limit", maxUploadBytes),
		})
		return nil, "", "", false
	}

	mimeType = uploadMimeType(fileHeader)
	if !allowedMimeTypes[mimeType] {
		c.JSON(http.StatusUnsupportedMediaType, Response{
			Success: false,
			Error:   "unsupported file type: " + mimeType,
		})
		return nil, "", "", false
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.writeError(c, "Failed to open uploaded file", err)
		return nil, "", "", false
	}
	defer file.Close()

	data, err = io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.writeError(c, "Failed to read uploaded file", err)
		return nil, "", "", false
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, Response{
			Success: false,
			Error:   fmt.Sprintf("file exceeds %d byte limit", maxUploadBytes),
		})
		return nil, "", "", false
	}

	return data, filepath.Base(fileHeader.Filename), mimeType, true
}

func uploadMimeType(fileHeader *multipart.FileHeader) string {
	mimeType := fileHeader.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	mimeType = strings.TrimSpace(strings.ToLower(mimeType))
	if mimeType != "" && mimeType != "application/octet-stream" {
		return mimeType
	}
	switch strings.ToLower(filepath.Ext(fileHeader.Filename)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return mimeType
	}
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) invalidTransition(c *gin.Context, status, trigger string) {
	c.JSON(http.StatusConflict, Response{
		Success: false,
		Error:   fmt.Sprintf("cannot %s from status %s", strings.ToLower(trigger), status),
	})
}

// writeError maps the shared error taxonomy onto HTTP statuses.
func (h *Handlers) writeError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Response{Success: false, Error: err.Error()})
}
