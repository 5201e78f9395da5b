package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"invoice-recon/internal/apperr"
)

type stubLocal struct {
	text  string
	pages int
	err   error
}

func (s *stubLocal) ExtractText(data []byte) (string, int, error) {
	return s.text, s.pages, s.err
}

type stubDocAI struct {
	analysis *Analysis
	err      error
	called   bool
}

func (s *stubDocAI) Analyze(ctx context.Context, data []byte) (*Analysis, error) {
	s.called = true
	return s.analysis, s.err
}

func floatPtr(f float64) *float64 { return &f }

// A realistic contract-looking body that passes the quality gate.
func goodText() string {
	sentence := "The contractor shall provide consulting services at the agreed hourly rate payable monthly under this agreement. "
	return strings.Repeat(sentence, 10)
}

func TestExtractUsesLocalWhenQualitySufficient(t *testing.T) {
	local := &stubLocal{text: goodText(), pages: 3}
	remote := &stubDocAI{}
	x := NewExtractor(local, remote, zap.NewNop())

	result, err := x.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)

	assert.Equal(t, MethodPDFText, result.Method)
	assert.Equal(t, 3, result.PageCount)
	assert.False(t, remote.called, "fallback must not be invoked for good local text")
	assert.InDelta(t, 0.7, result.Confidence, 0.2)
	assert.NotEmpty(t, result.Metadata["textHash"])
}

func TestExtractFallsBackOnShortText(t *testing.T) {
	// 40 characters: below the 100-char and 50-word floors.
	local := &stubLocal{text: "short body that fails the quality gate.", pages: 1}
	remote := &stubDocAI{analysis: &Analysis{
		Pages: 2,
		Blocks: []Block{
			{Type: "LINE", Text: "Invoice No 1001", Confidence: floatPtr(0.92)},
			{Type: "LINE", Text: "Total Due $4,200.00", Confidence: floatPtr(0.88)},
		},
	}}
	x := NewExtractor(local, remote, zap.NewNop())

	result, err := x.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)

	assert.True(t, remote.called)
	assert.Equal(t, MethodDocAI, result.Method)
	assert.Equal(t, 2, result.PageCount)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.Contains(t, result.Text, "Invoice No 1001")
}

func TestExtractFallsBackOnLocalError(t *testing.T) {
	local := &stubLocal{err: errors.New("encrypted pdf")}
	remote := &stubDocAI{analysis: &Analysis{Blocks: []Block{{Text: "recovered text"}}}}
	x := NewExtractor(local, remote, zap.NewNop())

	result, err := x.Extract(context.Background(), []byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, MethodDocAI, result.Method)
}

func TestExtractFailsWhenAllMethodsExhaust(t *testing.T) {
	local := &stubLocal{err: errors.New("bad pdf")}
	remote := &stubDocAI{err: errors.New("service down")}
	x := NewExtractor(local, remote, zap.NewNop())

	_, err := x.Extract(context.Background(), []byte("%PDF"))
	require.ErrorIs(t, err, apperr.ErrExtractionFailed)
}

func TestExtractRejectsOversizedFile(t *testing.T) {
	remote := &stubDocAI{}
	x := NewExtractor(&stubLocal{}, remote, zap.NewNop())

	_, err := x.Extract(context.Background(), make([]byte, MaxFileSize+1))
	require.ErrorIs(t, err, apperr.ErrExtractionFailed)
	assert.False(t, remote.called)
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "crlf normalized", in: "a\r\nb", want: "a\nb"},
		{name: "tabs to spaces", in: "a\tb", want: "a b"},
		{name: "space runs collapsed", in: "a    b", want: "a b"},
		{name: "blank lines collapsed", in: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "trimmed", in: "  a  ", want: "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestGarbledRatio(t *testing.T) {
	assert.Equal(t, 1.0, garbledRatio(""))
	assert.Equal(t, 0.0, garbledRatio("plain ascii words, punctuation included."))
	assert.Greater(t, garbledRatio("∆∆∆∆∆∆∆∆∆∆"), 0.2)
}

func TestLocalConfidenceScaling(t *testing.T) {
	short := strings.Repeat("word ", 100)
	medium := strings.Repeat("word ", 600)
	long := strings.Repeat("word ", 1200)

	assert.InDelta(t, 0.7, localConfidence(short), 1e-9)
	assert.InDelta(t, 0.8, localConfidence(medium), 1e-9)
	assert.InDelta(t, 0.9, localConfidence(long), 1e-9)
}

func TestRemoteConfidenceDefaults(t *testing.T) {
	assert.Equal(t, 0.0, remoteConfidence(&Analysis{}))
	assert.Equal(t, 0.5, remoteConfidence(&Analysis{Blocks: []Block{{Text: "x"}}}))

	scored := &Analysis{Blocks: []Block{
		{Text: "a", Confidence: floatPtr(0.8)},
		{Text: "b", Confidence: floatPtr(0.6)},
		{Text: "c"}, // unscored blocks are excluded from the mean
	}}
	assert.InDelta(t, 0.7, remoteConfidence(scored), 1e-9)
}
