package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(0.0, Clamp(-0.5))
	assert.Equal(0.0, Clamp(0))
	assert.Equal(0.42, Clamp(0.42))
	assert.Equal(1.0, Clamp(1))
	assert.Equal(1.0, Clamp(3.7))
}

func TestKeywordAnalyzerDeterministic(t *testing.T) {
	assert := assert.New(t)
	a := NewKeywordAnalyzer(nil)
	ctx := context.Background()

	content := Content{MessageID: "m1", Text: "they want to exploit and attack"}
	first, err := a.Analyze(ctx, content, AnalysisTypeText)
	require.NoError(t, err)
	second, err := a.Analyze(ctx, content, AnalysisTypeText)
	require.NoError(t, err)
	assert.Equal(first, second)

	// top weight wins: exploit (0.85) over attack (0.6)
	assert.InDelta(0.85, first.RiskScore, 0.001)
	assert.Equal(0.9, first.Confidence)
	assert.Len(first.Flags, 2)
}

func TestKeywordAnalyzerCleanText(t *testing.T) {
	assert := assert.New(t)
	a := NewKeywordAnalyzer(nil)

	out, err := a.Analyze(context.Background(), Content{Text: "lovely weather today"}, AnalysisTypeText)
	require.NoError(t, err)
	assert.Equal(0.0, out.RiskScore)
	assert.Equal(0.5, out.Confidence)
	assert.Empty(out.Flags)
}

func TestKeywordAnalyzerRepeatedCategory(t *testing.T) {
	assert := assert.New(t)
	a := NewKeywordAnalyzer(nil)

	// two violence hits: 0.7 base plus the repeat bump, one detection
	out, err := a.Analyze(context.Background(), Content{Text: "kill and attack"}, AnalysisTypeText)
	require.NoError(t, err)
	assert.InDelta(0.75, out.RiskScore, 0.001)
	assert.Len(out.Flags, 1)
}

func TestKeywordAnalyzerAllowlist(t *testing.T) {
	assert := assert.New(t)
	a := NewKeywordAnalyzer(nil)
	a.Allow = []string{"kill"}

	// allowlisted tokens never score, other terms still do
	out, err := a.Analyze(context.Background(), Content{Text: "kill the old process"}, AnalysisTypeText)
	require.NoError(t, err)
	assert.Equal(0.0, out.RiskScore)
	assert.Empty(out.Flags)

	out, err = a.Analyze(context.Background(), Content{Text: "kill and attack"}, AnalysisTypeText)
	require.NoError(t, err)
	assert.InDelta(0.6, out.RiskScore, 0.001)
	assert.Len(out.Flags, 1)
}

func TestHTTPAnalyzer(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/analyze", r.URL.Path)
		assert.Equal("Bearer sekrit", r.Header.Get("Authorization"))
		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal("msg-1", req.Content.MessageID)
		json.NewEncoder(w).Encode(Assessment{RiskScore: 0.66, Confidence: 0.8})
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, "sekrit", 100)
	out, err := a.Analyze(context.Background(), Content{MessageID: "msg-1", Text: "hi"}, AnalysisTypeText)
	require.NoError(t, err)
	assert.Equal(0.66, out.RiskScore)
	assert.Equal(0.8, out.Confidence)
}

func TestHTTPAnalyzerErrorsAreUnavailable(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, "", 100)
	_, err := a.Analyze(context.Background(), Content{Text: "hi"}, AnalysisTypeText)
	assert.ErrorIs(err, ErrUnavailable)
}

func TestHTTPAnalyzerClampsScores(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Assessment{RiskScore: 7.5, Confidence: -2})
	}))
	defer srv.Close()

	a := NewHTTPAnalyzer(srv.URL, "", 100)
	out, err := a.Analyze(context.Background(), Content{Text: "hi"}, AnalysisTypeText)
	require.NoError(t, err)
	assert.Equal(1.0, out.RiskScore)
	assert.Equal(0.0, out.Confidence)
}
