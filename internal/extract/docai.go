package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
)

// DocAIConfig configures the remote document-analysis client.
type DocAIConfig struct {
	APIURL   string
	APIToken string
	Timeout  time.Duration
	// MaxPages limits how many rendered pages are sent per request.
	MaxPages int
}

// DocAIClient talks to a table/form-aware document-analysis service.
// Pages are rendered to JPEG locally and analyzed remotely; the service
// returns text blocks with per-block confidence scores.
type DocAIClient struct {
	config     DocAIConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDocAIClient creates the fallback analysis client.
func NewDocAIClient(cfg DocAIConfig, logger *zap.Logger) *DocAIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 20
	}
	return &DocAIClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type analyzeRequest struct {
	Pages    []string `json:"pages"` // base64-encoded JPEG page images
	Features []string `json:"features"`
}

type analyzeResponse struct {
	Blocks []struct {
		Type       string   `json:"type"`
		Text       string   `json:"text"`
		Confidence *float64 `json:"confidence,omitempty"` // percent, 0-100
	} `json:"blocks"`
	Pages int `json:"pages"`
}

// Analyze renders the document's pages and submits them for analysis.
func (c *DocAIClient) Analyze(ctx context.Context, data []byte) (*Analysis, error) {
	if c.config.APIURL == "" {
		return nil, apperr.ServiceUnavailable("document analysis service not configured")
	}

	pages, err := c.renderPages(data)
	if err != nil {
		return nil, fmt.Errorf("render pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages rendered from document")
	}

	encoded := make([]string, len(pages))
	for i, page := range pages {
		encoded[i] = base64.StdEncoding.EncodeToString(page)
	}

	body, err := json.Marshal(analyzeRequest{
		Pages:    encoded,
		Features: []string{"TABLES", "FORMS"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.APIURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.ServiceUnavailable("document analysis request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.ServiceUnavailable("document analysis returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	analysis := &Analysis{Pages: parsed.Pages}
	if analysis.Pages == 0 {
		analysis.Pages = len(pages)
	}
	for _, block := range parsed.Blocks {
		b := Block{Type: block.Type, Text: block.Text}
		if block.Confidence != nil {
			normalized := *block.Confidence / 100
			b.Confidence = &normalized
		}
		analysis.Blocks = append(analysis.Blocks, b)
	}

	c.logger.Debug("Document analysis completed",
		zap.Int("pages", analysis.Pages),
		zap.Int("blocks", len(analysis.Blocks)))

	return analysis, nil
}

// renderPages rasterizes PDF pages to JPEG via mupdf.
func (c *DocAIClient) renderPages(data []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count > c.config.MaxPages {
		count = c.config.MaxPages
	}

	var pages [][]byte
	for pageNum := 0; pageNum < count; pageNum++ {
		img, err := doc.Image(pageNum)
		if err != nil {
			c.logger.Warn("Failed to render page", zap.Int("page", pageNum), zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			c.logger.Warn("Failed to encode page", zap.Int("page", pageNum), zap.Error(err))
			continue
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}
