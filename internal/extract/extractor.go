package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
	"invoice-recon/pkg/utils"
)

// Extraction methods reported in document metadata.
const (
	MethodPDFText = "pdf-text"
	MethodDocAI   = "docai"
)

// MaxFileSize caps input documents at 10MB.
const MaxFileSize = 10 * 1024 * 1024

// Result is the outcome of text extraction from a raw document.
type Result struct {
	Text       string
	Method     string
	PageCount  int
	Confidence float64
	Metadata   map[string]any
}

// LocalExtractor produces plain text from document bytes without leaving
// the process. The default implementation parses PDFs directly.
type LocalExtractor interface {
	ExtractText(data []byte) (text string, pages int, err error)
}

// Block is one unit of text recognized by the remote analysis service,
// optionally carrying a confidence score.
type Block struct {
	Type       string
	Text       string
	Confidence *float64
}

// Analysis is the remote service's response for one document.
type Analysis struct {
	Blocks []Block
	Pages  int
}

// DocAI is the remote OCR/document-analysis fallback. Called only when
// local extraction fails or its output fails the quality gate.
type DocAI interface {
	Analyze(ctx context.Context, data []byte) (*Analysis, error)
}

// Extractor runs quality-gated text extraction: a fast local pass first,
// falling back to the remote document-analysis service.
type Extractor struct {
	local  LocalExtractor
	remote DocAI
	logger *zap.Logger
}

// NewExtractor creates an extractor with the given primary and fallback.
func NewExtractor(local LocalExtractor, remote DocAI, logger *zap.Logger) *Extractor {
	return &Extractor{local: local, remote: remote, logger: logger}
}

// Extract converts raw document bytes into cleaned plain text.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*Result, error) {
	if len(data) > MaxFileSize {
		return nil, apperr.ExtractionFailed("file size %d exceeds limit of %d bytes", len(data), MaxFileSize)
	}

	result, err := e.extractLocal(data)
	if err == nil && textQualitySufficient(result.Text) {
		return result, nil
	}

	if err != nil {
		e.logger.Warn("Local extraction failed, falling back to document analysis", zap.Error(err))
	} else {
		e.logger.Warn("Local extraction quality insufficient, falling back to document analysis",
			zap.Int("chars", len(result.Text)))
	}

	fallback, ferr := e.extractRemote(ctx, data)
	if ferr != nil {
		return nil, apperr.ExtractionFailed("all extraction methods exhausted: %v", ferr)
	}
	return fallback, nil
}

func (e *Extractor) extractLocal(data []byte) (*Result, error) {
	text, pages, err := e.local.ExtractText(data)
	if err != nil {
		return nil, fmt.Errorf("local extraction: %w", err)
	}
	cleaned := CleanText(text)
	return &Result{
		Text:       cleaned,
		Method:     MethodPDFText,
		PageCount:  pages,
		Confidence: localConfidence(cleaned),
		Metadata: map[string]any{
			"textHash": HashText(cleaned),
		},
	}, nil
}

func (e *Extractor) extractRemote(ctx context.Context, data []byte) (*Result, error) {
	analysis, err := e.remote.Analyze(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("document analysis: %w", err)
	}

	lines := make([]string, 0, len(analysis.Blocks))
	for _, block := range analysis.Blocks {
		if block.Text != "" {
			lines = append(lines, block.Text)
		}
	}
	cleaned := CleanText(strings.Join(lines, "\n"))

	pages := analysis.Pages
	if pages == 0 {
		pages = 1
	}

	return &Result{
		Text:       cleaned,
		Method:     MethodDocAI,
		PageCount:  pages,
		Confidence: remoteConfidence(analysis),
		Metadata: map[string]any{
			"blockCount": len(analysis.Blocks),
			"textHash":   HashText(cleaned),
		},
	}, nil
}

var (
	crlfPattern       = regexp.MustCompile(`\r\n`)
	tabPattern        = regexp.MustCompile(`\t`)
	spaceRunPattern   = regexp.MustCompile(`[^\S\n]+`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes extracted text: control characters stripped,
// CRLF to LF, tabs to spaces, collapsed whitespace runs, and at most
// one blank line in a row.
func CleanText(text string) string {
	cleaned := utils.SanitizeString(text)
	cleaned = crlfPattern.ReplaceAllString(cleaned, "\n")
	cleaned = tabPattern.ReplaceAllString(cleaned, " ")
	cleaned = spaceRunPattern.ReplaceAllString(cleaned, " ")
	cleaned = blankLinesPattern.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// HashText returns the SHA-256 hex digest of the extracted text, stored
// in metadata so reprocessing the same bytes is detectable.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

var (
	nonASCIIPattern = regexp.MustCompile(`[^\x00-\x7F]`)
	specialPattern  = regexp.MustCompile(`[^\w\s.,;:!?'"()-]`)
)

// textQualitySufficient gates the local extraction result: at least 100
// characters, 50 words, and a garbled ratio of 0.2 or below.
func textQualitySufficient(text string) bool {
	if len(text) < 100 {
		return false
	}
	if len(strings.Fields(text)) < 50 {
		return false
	}
	return garbledRatio(text) <= 0.2
}

// garbledRatio measures how much of the text looks like OCR noise:
// (non-ASCII characters + non-punctuation special characters) / total.
func garbledRatio(text string) float64 {
	total := len(text)
	if total == 0 {
		return 1
	}
	nonASCII := len(nonASCIIPattern.FindAllString(text, -1))
	special := len(specialPattern.FindAllString(text, -1))
	return float64(nonASCII+special) / float64(total)
}

// localConfidence scores the local path: base 0.7, +0.1 per 500 words up
// to +0.2, minus half the garbled ratio, clamped to [0,1].
func localConfidence(text string) float64 {
	confidence := 0.7
	words := len(strings.Fields(text))
	if words > 500 {
		confidence += 0.1
	}
	if words > 1000 {
		confidence += 0.1
	}
	confidence -= garbledRatio(text) * 0.5

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// remoteConfidence averages per-block confidence scores: 0.5 when blocks
// carry no scores, 0 when the service returned no blocks at all.
func remoteConfidence(analysis *Analysis) float64 {
	if len(analysis.Blocks) == 0 {
		return 0
	}
	var sum float64
	var scored int
	for _, block := range analysis.Blocks {
		if block.Confidence != nil {
			sum += *block.Confidence
			scored++
		}
	}
	if scored == 0 {
		return 0.5
	}
	return sum / float64(scored)
}
