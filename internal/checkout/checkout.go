package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"checkout-service/internal/card"
	"checkout-service/internal/gateway"
	"checkout-service/internal/logcontext"
	"checkout-service/internal/model"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const genericErrorMessage = "Payment could not be processed. Please try again."

var (
	// ErrNotReady is returned when a submission or lookup is attempted
	// while the machine is not in a state that allows it, including a
	// second submission racing an in-flight one.
	ErrNotReady = errors.New("checkout is not ready for this operation")

	// ErrNotRetryable is returned when Retry is called outside of the
	// FAILED and ERROR_RETRYABLE states.
	ErrNotRetryable = errors.New("checkout is not in a retryable state")

	errMissingLinkID = errors.New("no payment link ID at submission time")
)

var (
	submissionDurationHistogram = metrics.GetOrCreateHistogram(`checkout_submission_duration_milliseconds`)
	staleLookupCounter          = metrics.GetOrCreateCounter(`checkout_lookups_total{result="stale"}`)
	rejectedFormCounter         = metrics.GetOrCreateCounter(`checkout_submissions_total{result="rejected_form"}`)
)

// Gateway is the remote collaborator the checkout flow talks to. The
// concrete implementation lives in internal/gateway; tests substitute
// their own.
type Gateway interface {
	GetLink(ctx context.Context, id string) (*model.PaymentLink, error)
	SubmitPayment(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error)
}

// Tokenizer converts raw card data into an opaque token. The stub in
// internal/token never fails; a real provider SDK may.
type Tokenizer interface {
	CreateToken(ctx context.Context, provider model.Provider) (string, error)
}

// Snapshot is a consistent view of the session for a UI binding. Status
// and the presence of Link/Result/ErrorMessage always agree.
type Snapshot struct {
	Status       model.CheckoutStatus `json:"status"`
	Link         *model.PaymentLink   `json:"link,omitempty"`
	Result       *model.PaymentResult `json:"result,omitempty"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
	SearchValue  string               `json:"searchValue,omitempty"`
	TotalAmount  decimal.Decimal      `json:"totalAmount"`
}

// Listener is notified after every state transition. Listeners run under
// the session lock and must not call back into the Checkout.
type Listener func(Snapshot)

// Checkout is the state machine coordinating link lookup, form
// validation, tokenization and payment submission for one session.
type Checkout struct {
	mu           sync.Mutex
	status       model.CheckoutStatus
	link         *model.PaymentLink
	result       *model.PaymentResult
	errorMessage string
	searchValue  string

	// generation invalidates in-flight lookups when a newer one starts
	generation uint64

	gateway   Gateway
	tokenizer Tokenizer
	provider  model.Provider
	logger    *slog.Logger
	listeners []Listener
}

func New(gw Gateway, tokenizer Tokenizer, provider model.Provider, logger *slog.Logger) *Checkout {
	return &Checkout{
		status:    model.StatusInitializing,
		gateway:   gw,
		tokenizer: tokenizer,
		provider:  provider,
		logger:    logger,
	}
}

// Subscribe registers a listener for state transitions.
func (c *Checkout) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Snapshot returns the current session view.
func (c *Checkout) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Start consumes the route input: a present link ID enters the lookup,
// an absent one lands on the search view.
func (c *Checkout) Start(ctx context.Context, linkID string) error {
	c.mu.Lock()
	if c.status != model.StatusInitializing {
		c.mu.Unlock()
		return ErrNotReady
	}
	if linkID == "" {
		c.setStatusLocked(ctx, model.StatusAwaitingInput)
		c.notifyLocked()
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.LoadLink(ctx, linkID)
}

// LoadLink runs a link lookup. A lookup started later wins: if another
// lookup begins while this one is in flight, the late result is dropped.
func (c *Checkout) LoadLink(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.status == model.StatusProcessingPayment {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.generation++
	gen := c.generation
	c.link = nil
	c.result = nil
	c.errorMessage = ""
	c.setStatusLocked(ctx, model.StatusLoadingLink)
	c.notifyLocked()
	c.mu.Unlock()

	link, err := c.gateway.GetLink(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation {
		c.logger.InfoContext(ctx, "Discarding stale lookup result", "linkId", id)
		staleLookupCounter.Inc()
		return nil
	}

	if err != nil {
		c.logger.WarnContext(ctx, "Link lookup failed", "linkId", id, "error", err)
		c.searchValue = id
		c.setStatusLocked(ctx, model.StatusLinkNotFound)
		c.notifyLocked()
		return nil
	}

	c.link = link
	c.setStatusLocked(ctx, model.StatusReadyToPay)
	c.notifyLocked()
	return nil
}

// Search validates the search input and re-enters the lookup with the
// trimmed ID. A non-empty return value is the field error to render; the
// machine state does not change in that case.
func (c *Checkout) Search(ctx context.Context, value string) (string, error) {
	if msg := card.ValidateSearch(value); msg != "" {
		return msg, nil
	}

	trimmed := strings.TrimSpace(value)

	c.mu.Lock()
	c.searchValue = trimmed
	c.mu.Unlock()

	return "", c.LoadLink(ctx, trimmed)
}

// Submit runs one payment attempt. A non-empty FieldErrors map means the
// form failed local validation and nothing else happened. Otherwise the
// machine moves through PROCESSING_PAYMENT and is guaranteed to leave it
// again on every path, so the form is always re-enabled.
func (c *Checkout) Submit(ctx context.Context, form card.Form) (card.FieldErrors, error) {
	if fieldErrors := card.ValidateForm(form); len(fieldErrors) > 0 {
		rejectedFormCounter.Inc()
		return fieldErrors, nil
	}

	c.mu.Lock()
	if c.status != model.StatusReadyToPay {
		c.mu.Unlock()
		return nil, ErrNotReady
	}
	link := c.link
	c.errorMessage = ""
	c.setStatusLocked(ctx, model.StatusProcessingPayment)
	c.notifyLocked()
	c.mu.Unlock()

	ctx = logcontext.AppendCtx(ctx, slog.String("attemptId", uuid.New().String()))
	startTime := time.Now()

	var (
		result *model.PaymentResult
		errMsg = genericErrorMessage
	)

	// Single exit point out of PROCESSING_PAYMENT for success, business
	// failure and transport error alike.
	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if result != nil {
			c.result = result
			if result.Status == model.ResultCompleted {
				c.setStatusLocked(ctx, model.StatusCompleted)
			} else {
				c.setStatusLocked(ctx, model.StatusFailed)
			}
		} else {
			c.errorMessage = errMsg
			c.setStatusLocked(ctx, model.StatusErrorRetryable)
		}
		c.notifyLocked()

		submissionDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	cardToken, err := c.tokenizer.CreateToken(ctx, c.provider)
	if err != nil {
		c.logger.ErrorContext(ctx, "Tokenization failed", "error", err)
		return nil, nil
	}

	if link == nil || link.ID == "" {
		c.logger.ErrorContext(ctx, "Submission precondition violated", "error", errMissingLinkID)
		return nil, nil
	}

	request := model.PaymentRequest{
		CardToken:      cardToken,
		IdempotencyKey: uuid.NewString(),
		Provider:       c.provider,
		Metadata:       map[string]string{"linkId": link.ID},
	}

	paymentResult, err := c.gateway.SubmitPayment(ctx, link.ID, request)
	if err != nil {
		c.logger.ErrorContext(ctx, "Payment submission failed", "error", err)
		var transportErr *gateway.TransportError
		if errors.As(err, &transportErr) && transportErr.Message != "" {
			errMsg = transportErr.Message
		}
		return nil, nil
	}

	result = paymentResult
	return nil, nil
}

// Retry resets a failed attempt back to READY_TO_PAY, discarding the
// previous result and error message. The next Submit is a fresh attempt
// with a fresh idempotency key.
func (c *Checkout) Retry(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != model.StatusFailed && c.status != model.StatusErrorRetryable {
		return ErrNotRetryable
	}

	c.result = nil
	c.errorMessage = ""
	c.setStatusLocked(ctx, model.StatusReadyToPay)
	c.notifyLocked()
	return nil
}

// TotalAmount is the amount the payer is charged: base amount plus total
// fees, rounded half away from zero at the cent. Zero without a link.
func (c *Checkout) TotalAmount() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return totalAmount(c.link)
}

func totalAmount(link *model.PaymentLink) decimal.Decimal {
	if link == nil {
		return decimal.Zero
	}
	return link.AmountUsd.Add(link.FeePreview.TotalFeesUsd).Round(2)
}

func (c *Checkout) snapshotLocked() Snapshot {
	return Snapshot{
		Status:       c.status,
		Link:         c.link,
		Result:       c.result,
		ErrorMessage: c.errorMessage,
		SearchValue:  c.searchValue,
		TotalAmount:  totalAmount(c.link),
	}
}

func (c *Checkout) setStatusLocked(ctx context.Context, status model.CheckoutStatus) {
	c.logger.InfoContext(ctx, "Checkout transition", "from", c.status, "to", status)
	c.status = status
	metrics.GetOrCreateCounter(fmt.Sprintf(`checkout_transitions_total{to=%q}`, status)).Inc()
}

func (c *Checkout) notifyLocked() {
	snapshot := c.snapshotLocked()
	for _, l := range c.listeners {
		l(snapshot)
	}
}
