package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"checkout-service/internal/model"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

var ErrLinkNotFound = errors.New("payment link not found")

var (
	getLinkSuccessCounter  = metrics.GetOrCreateCounter(`gateway_requests_total{op="get_link",result="success"}`)
	getLinkNotFoundCounter = metrics.GetOrCreateCounter(`gateway_requests_total{op="get_link",result="not_found"}`)
	getLinkErrorCounter    = metrics.GetOrCreateCounter(`gateway_requests_total{op="get_link",result="error"}`)

	submitSuccessCounter = metrics.GetOrCreateCounter(`gateway_requests_total{op="submit_payment",result="success"}`)
	submitErrorCounter   = metrics.GetOrCreateCounter(`gateway_requests_total{op="submit_payment",result="error"}`)
)

// TransportError is an HTTP-level failure: the gateway answered, but not
// with a business outcome. Message holds the server-supplied message when
// the response body carried one as a plain JSON string, otherwise "".
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway returned %d", e.StatusCode)
}

// Client is a thin wrapper around the two remote operations the checkout
// flow needs: fetching a payment link and submitting a payment.
type Client struct {
	resty  *resty.Client
	logger *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Client{resty: client, logger: logger}
}

// HTTPClient exposes the underlying http.Client for transport-level
// interception in tests.
func (c *Client) HTTPClient() *http.Client {
	return c.resty.GetClient()
}

func (c *Client) GetLink(ctx context.Context, id string) (*model.PaymentLink, error) {
	c.logger.InfoContext(ctx, "Fetching payment link", "linkId", id)

	resp, err := c.resty.R().
		SetContext(ctx).
		Get("/payment-links/" + id)
	if err != nil {
		getLinkErrorCounter.Inc()
		return nil, errors.Wrap(err, "failed to call link endpoint")
	}

	if resp.StatusCode() == http.StatusNotFound {
		getLinkNotFoundCounter.Inc()
		return nil, ErrLinkNotFound
	}

	if resp.IsError() {
		getLinkErrorCounter.Inc()
		return nil, &TransportError{StatusCode: resp.StatusCode(), Message: extractMessage(resp.Body())}
	}

	var link model.PaymentLink
	if err := json.Unmarshal(resp.Body(), &link); err != nil {
		getLinkErrorCounter.Inc()
		return nil, errors.Wrap(err, "failed to decode payment link response")
	}

	getLinkSuccessCounter.Inc()
	return &link, nil
}

func (c *Client) SubmitPayment(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error) {
	c.logger.InfoContext(ctx, "Submitting payment", "linkId", linkID, "provider", request.Provider)

	resp, err := c.resty.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", request.IdempotencyKey).
		SetBody(request).
		Post("/payment-links/" + linkID + "/payments")
	if err != nil {
		submitErrorCounter.Inc()
		return nil, errors.Wrap(err, "failed to call payment endpoint")
	}

	if resp.IsError() {
		submitErrorCounter.Inc()
		return nil, &TransportError{StatusCode: resp.StatusCode(), Message: extractMessage(resp.Body())}
	}

	var result model.PaymentResult
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		submitErrorCounter.Inc()
		return nil, errors.Wrap(err, "failed to decode payment response")
	}

	submitSuccessCounter.Inc()
	return &result, nil
}

// extractMessage pulls "message" out of an error body only when it is a
// JSON string; anything else is discarded so callers fall back to a
// generic user-facing message.
func extractMessage(body []byte) string {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	if msg, ok := parsed["message"].(string); ok {
		return msg
	}
	return ""
}
