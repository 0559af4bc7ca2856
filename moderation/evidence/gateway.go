package evidence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/carlmjohnson/versioninfo"

	"github.com/haven-msg/sentinel/moderation/store"
	"github.com/haven-msg/sentinel/util"
)

// HTTPGateway submits case reports to an external agency intake endpoint.
type HTTPGateway struct {
	Client http.Client
	Host   string
	Token  string
}

func NewHTTPGateway(host, token string) *HTTPGateway {
	return &HTTPGateway{
		Client: *util.RobustHTTPClient(),
		Host:   host,
		Token:  token,
	}
}

type gatewaySubmission struct {
	CaseID   string             `json:"case_id"`
	Agency   string             `json:"agency"`
	Urgency  string             `json:"urgency"`
	Snapshot store.CaseSnapshot `json:"snapshot"`
}

type gatewayResp struct {
	Reference string `json:"reference"`
}

func (g *HTTPGateway) Submit(ctx context.Context, report *store.CaseReport) (string, error) {
	sub := gatewaySubmission{
		CaseID:   report.CaseID,
		Agency:   report.Agency,
		Urgency:  report.Urgency,
		Snapshot: report.Snapshot,
	}
	payload, err := json.Marshal(&sub)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.Host+"/v1/reports", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "sentinel/"+versioninfo.Short())
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	start := time.Now()
	res, err := g.Client.Do(req)
	gatewayAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		gatewayAPICount.WithLabelValues("error").Inc()
		return "", fmt.Errorf("agency gateway request failed: %w", err)
	}
	defer res.Body.Close()

	gatewayAPICount.WithLabelValues(fmt.Sprint(res.StatusCode)).Inc()
	if res.StatusCode != 200 && res.StatusCode != 201 {
		return "", fmt.Errorf("agency gateway request failed statusCode=%d", res.StatusCode)
	}

	var respObj gatewayResp
	if err := json.NewDecoder(res.Body).Decode(&respObj); err != nil {
		return "", fmt.Errorf("failed to parse agency gateway response: %w", err)
	}
	return respObj.Reference, nil
}

// ManualGateway accepts every filing without contacting any agency, for
// deployments where cases are hand-delivered. The case still moves to
// submitted; the agency reference arrives later via agency update.
type ManualGateway struct{}

func (ManualGateway) Submit(ctx context.Context, report *store.CaseReport) (string, error) {
	return "", nil
}

var (
	_ AgencyGateway = (*HTTPGateway)(nil)
	_ AgencyGateway = ManualGateway{}
)
