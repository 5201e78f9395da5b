package matcher

import (
	"context"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"invoice-recon/internal/ai"
	"invoice-recon/internal/models"
)

// Similarity thresholds. Canonicalization is stricter than invoice
// matching: merging two vendors wrongly is worse than filing an invoice
// under a review queue.
const (
	CanonicalizeThreshold = 0.85
	InvoiceMatchThreshold = 0.80
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// Slug derives the deterministic fallback canonical name: lowercase
// with everything but letters and digits stripped.
func Slug(name string) string {
	return nonAlphanumeric.ReplaceAllString(strings.ToLower(name), "")
}

// Matcher resolves free-text vendor names against known vendors using
// embedding similarity.
type Matcher struct {
	client ai.Client
	logger *zap.Logger
}

// New creates a vendor matcher.
func New(client ai.Client, logger *zap.Logger) *Matcher {
	return &Matcher{client: client, logger: logger}
}

// Canonicalize maps an extracted vendor name onto an existing canonical
// name when similarity exceeds the canonicalization threshold, and
// otherwise falls back to the slug of the extracted name. An empty
// known set short-circuits without an embedding call.
func (m *Matcher) Canonicalize(ctx context.Context, name string, known []models.VendorRef) (string, error) {
	if len(known) == 0 {
		return Slug(name), nil
	}

	best, score, err := m.closest(ctx, name, known)
	if err != nil {
		return "", err
	}
	if score > CanonicalizeThreshold {
		m.logger.Debug("Canonicalized vendor name to existing vendor",
			zap.String("name", name),
			zap.String("canonical", best.CanonicalName),
			zap.Float64("similarity", score))
		return best.CanonicalName, nil
	}
	return Slug(name), nil
}

// MatchVendor finds the known vendor an invoice's vendor name belongs
// to, or nil when no vendor exceeds the match threshold.
func (m *Matcher) MatchVendor(ctx context.Context, name string, known []models.VendorRef) (*models.VendorRef, error) {
	if len(known) == 0 {
		return nil, nil
	}

	// Exact canonical hit skips the embedding round-trip.
	slug := Slug(name)
	for i := range known {
		if known[i].CanonicalName == slug {
			return &known[i], nil
		}
	}

	best, score, err := m.closest(ctx, name, known)
	if err != nil {
		return nil, err
	}
	if score > InvoiceMatchThreshold {
		return best, nil
	}
	m.logger.Debug("No vendor match above threshold",
		zap.String("name", name),
		zap.Float64("best", score))
	return nil, nil
}

// closest embeds the name and every known vendor name and returns the
// highest-similarity candidate.
func (m *Matcher) closest(ctx context.Context, name string, known []models.VendorRef) (*models.VendorRef, float64, error) {
	target, err := m.client.Embed(ctx, name)
	if err != nil {
		return nil, 0, err
	}

	var (
		best      *models.VendorRef
		bestScore = math.Inf(-1)
	)
	for i := range known {
		candidate, err := m.client.Embed(ctx, known[i].Name)
		if err != nil {
			return nil, 0, err
		}
		if score := CosineSimilarity(target, candidate); score > bestScore {
			bestScore = score
			best = &known[i]
		}
	}
	return best, bestScore, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors,
// 0 when either vector is zero or lengths differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
