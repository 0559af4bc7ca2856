package util

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// RobustHTTPClient returns an HTTP client with retries and timeouts, for
// calls to external services (content analyzer, notification webhooks).
func RobustHTTPClient() *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(slog.Default())
	client := retryClient.StandardClient()
	client.Timeout = 20 * time.Second
	return client
}
