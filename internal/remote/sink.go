// Package remote delivers scan records to the remote store.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/logging"
	"github.com/hpungsan/snapfood/internal/scan"
)

// maxErrorBody caps how much of a rejection body ends up in the error.
const maxErrorBody = 512

// HTTPSink POSTs each record as JSON. Any non-2xx response is a failure.
type HTTPSink struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

// NewHTTPSink creates a sink for url. A zero timeout leaves cancellation to
// the caller's context.
func NewHTTPSink(url string, timeout time.Duration, log *zap.Logger) *HTTPSink {
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    logging.OrNop(log).Named("remote"),
	}
}

// Submit sends rec and waits for the response or ctx.
func (s *HTTPSink) Submit(ctx context.Context, rec scan.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return errors.NewInternal(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("invalid remote url: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", rec.ID)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.NewSync(rec.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := fmt.Sprintf("remote returned %d", resp.StatusCode)
		if text := strings.TrimSpace(string(snippet)); text != "" {
			msg += ": " + text
		}
		return errors.NewSync(rec.ID, fmt.Errorf("%s", msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	s.log.Debug("delivered", zap.String("id", rec.ID), zap.Int("status", resp.StatusCode))
	return nil
}

// Unconfigured is the sink used when no remote URL is set. Every submission
// fails, so records stay queued until a remote is configured.
type Unconfigured struct{}

// Submit implements the sink contract.
func (Unconfigured) Submit(_ context.Context, rec scan.Record) error {
	return errors.NewSync(rec.ID, fmt.Errorf("remote sink not configured"))
}
