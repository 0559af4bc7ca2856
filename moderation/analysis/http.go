package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"

	"github.com/haven-msg/sentinel/util"
)

// HTTPAnalyzer calls an external scoring service. Network failures, timeouts,
// and 5xx responses all map to ErrUnavailable so a dead model can never pass
// content off as safe.
type HTTPAnalyzer struct {
	Client  *http.Client
	Host    string
	Token   string
	Limiter *rate.Limiter
}

func NewHTTPAnalyzer(host, token string, reqPerSec int) *HTTPAnalyzer {
	if reqPerSec <= 0 {
		reqPerSec = 20
	}
	return &HTTPAnalyzer{
		Client:  util.RobustHTTPClient(),
		Host:    host,
		Token:   token,
		Limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
	}
}

type analyzeRequest struct {
	Content      Content `json:"content"`
	AnalysisType string  `json:"analysis_type"`
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, content Content, analysisType string) (*Assessment, error) {
	if err := a.Limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for analyzer rate limit: %w", ErrUnavailable)
	}

	body, err := json.Marshal(analyzeRequest{Content: content, AnalysisType: analysisType})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Host+"/v1/analyze", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "sentinel/"+versioninfo.Short())
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}

	start := time.Now()
	res, err := a.Client.Do(req)
	analyzerAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		analyzerAPICount.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("analyzer request failed: %w", ErrUnavailable)
	}
	defer res.Body.Close()

	analyzerAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != 200 {
		return nil, fmt.Errorf("analyzer request failed statusCode=%d: %w", res.StatusCode, ErrUnavailable)
	}

	respBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading analyzer response: %w", ErrUnavailable)
	}
	var out Assessment
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return nil, fmt.Errorf("parsing analyzer response: %w", ErrUnavailable)
	}
	out.RiskScore = Clamp(out.RiskScore)
	out.Confidence = Clamp(out.Confidence)
	return &out, nil
}

var _ Analyzer = (*HTTPAnalyzer)(nil)
