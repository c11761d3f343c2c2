package checkout_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/card"
	"checkout-service/internal/checkout"
	"checkout-service/internal/gateway"
	"checkout-service/internal/model"
	"checkout-service/internal/token"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type fakeGateway struct {
	mu          sync.Mutex
	getLink     func(ctx context.Context, id string) (*model.PaymentLink, error)
	submit      func(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error)
	submissions []model.PaymentRequest
}

func (g *fakeGateway) GetLink(ctx context.Context, id string) (*model.PaymentLink, error) {
	return g.getLink(ctx, id)
}

func (g *fakeGateway) SubmitPayment(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error) {
	g.mu.Lock()
	g.submissions = append(g.submissions, request)
	g.mu.Unlock()
	return g.submit(ctx, linkID, request)
}

func (g *fakeGateway) recorded() []model.PaymentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]model.PaymentRequest(nil), g.submissions...)
}

func activeLink(id string) *model.PaymentLink {
	return &model.PaymentLink{
		ID:        id,
		AmountUsd: decimal.RequireFromString("100"),
		Status:    model.LinkStatusActive,
		FeePreview: model.FeePreview{
			TotalFeesUsd: decimal.RequireFromString("5.555"),
		},
	}
}

func completedResult(linkID string) *model.PaymentResult {
	return &model.PaymentResult{
		TransactionID: "tx_1",
		Status:        model.ResultCompleted,
		LinkID:        linkID,
	}
}

func newCheckout(gw checkout.Gateway) *checkout.Checkout {
	tokenizer := &token.Stub{MinDelay: 0, MaxDelay: time.Millisecond}
	return checkout.New(gw, tokenizer, model.ProviderStripe, slog.Default())
}

func linkGateway(link *model.PaymentLink, result *model.PaymentResult) *fakeGateway {
	return &fakeGateway{
		getLink: func(ctx context.Context, id string) (*model.PaymentLink, error) {
			if link != nil && link.ID == id {
				return link, nil
			}
			return nil, gateway.ErrLinkNotFound
		},
		submit: func(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error) {
			return result, nil
		},
	}
}

func TestStart_WithLinkID(t *testing.T) {
	ctx := context.Background()
	gw := linkGateway(activeLink("pl_valid"), nil)
	sut := newCheckout(gw)

	var transitions []model.CheckoutStatus
	sut.Subscribe(func(s checkout.Snapshot) {
		transitions = append(transitions, s.Status)
	})

	err := sut.Start(ctx, "pl_valid")
	assert.NoError(t, err)

	snapshot := sut.Snapshot()
	assert.Equal(t, model.StatusReadyToPay, snapshot.Status)
	assert.NotNil(t, snapshot.Link)
	assert.Equal(t, "pl_valid", snapshot.Link.ID)
	assert.Nil(t, snapshot.Result)
	assert.Empty(t, snapshot.ErrorMessage)
	assert.Equal(t, []model.CheckoutStatus{model.StatusLoadingLink, model.StatusReadyToPay}, transitions)
}

func TestStart_WithoutLinkID(t *testing.T) {
	sut := newCheckout(linkGateway(nil, nil))

	err := sut.Start(context.Background(), "")
	assert.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingInput, sut.Snapshot().Status)
}

func TestStart_Twice(t *testing.T) {
	sut := newCheckout(linkGateway(nil, nil))

	assert.NoError(t, sut.Start(context.Background(), ""))
	assert.ErrorIs(t, sut.Start(context.Background(), ""), checkout.ErrNotReady)
}

func TestLoadLink_NotFound(t *testing.T) {
	sut := newCheckout(linkGateway(nil, nil))

	err := sut.Start(context.Background(), "pl_missing")
	assert.NoError(t, err)

	snapshot := sut.Snapshot()
	assert.Equal(t, model.StatusLinkNotFound, snapshot.Status)
	assert.Nil(t, snapshot.Link)
	assert.Equal(t, "pl_missing", snapshot.SearchValue, "attempted ID pre-fills the search field")
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid input returns field error without transition", func(t *testing.T) {
		sut := newCheckout(linkGateway(nil, nil))
		assert.NoError(t, sut.Start(ctx, ""))

		fieldError, err := sut.Search(ctx, "pl_1")
		assert.NoError(t, err)
		assert.NotEmpty(t, fieldError)
		assert.Equal(t, model.StatusAwaitingInput, sut.Snapshot().Status)
	})

	t.Run("valid input re-enters the lookup", func(t *testing.T) {
		sut := newCheckout(linkGateway(activeLink("pl_valid"), nil))
		assert.NoError(t, sut.Start(ctx, "pl_wrong"))
		assert.Equal(t, model.StatusLinkNotFound, sut.Snapshot().Status)

		fieldError, err := sut.Search(ctx, "  pl_valid  ")
		assert.NoError(t, err)
		assert.Empty(t, fieldError)
		assert.Equal(t, model.StatusReadyToPay, sut.Snapshot().Status)
	})
}

func TestLoadLink_StaleResultIsDiscarded(t *testing.T) {
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})

	gw := &fakeGateway{
		getLink: func(ctx context.Context, id string) (*model.PaymentLink, error) {
			if id == "pl_slow" {
				close(started)
				<-release
				return activeLink("pl_slow"), nil
			}
			return activeLink(id), nil
		},
	}
	sut := newCheckout(gw)
	assert.NoError(t, sut.Start(ctx, ""))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, sut.LoadLink(ctx, "pl_slow"))
	}()

	<-started
	assert.NoError(t, sut.LoadLink(ctx, "pl_fast"))

	close(release)
	wg.Wait()

	snapshot := sut.Snapshot()
	assert.Equal(t, model.StatusReadyToPay, snapshot.Status)
	assert.Equal(t, "pl_fast", snapshot.Link.ID, "late result of the older lookup must not win")
}

func TestSubmit_InvalidForm(t *testing.T) {
	ctx := context.Background()
	gw := linkGateway(activeLink("pl_valid"), completedResult("pl_valid"))
	sut := newCheckout(gw)
	assert.NoError(t, sut.Start(ctx, "pl_valid"))

	fieldErrors, err := sut.Submit(ctx, card.Form{Number: "1234"})
	assert.NoError(t, err)
	assert.NotEmpty(t, fieldErrors)

	assert.Equal(t, model.StatusReadyToPay, sut.Snapshot().Status, "local validation must not change state")
	assert.Empty(t, gw.recorded(), "nothing may be submitted")
}

func TestSubmit_Completed(t *testing.T) {
	ctx := context.Background()
	gw := linkGateway(activeLink("pl_valid"), completedResult("pl_valid"))
	sut := newCheckout(gw)
	assert.NoError(t, sut.Start(ctx, "pl_valid"))

	fieldErrors, err := sut.Submit(ctx, validForm())
	assert.NoError(t, err)
	assert.Empty(t, fieldErrors)

	snapshot := sut.Snapshot()
	assert.Equal(t, model.StatusCompleted, snapshot.Status)
	assert.NotNil(t, snapshot.Result)
	assert.Equal(t, "tx_1", snapshot.Result.TransactionID)

	submissions := gw.recorded()
	assert.Len(t, submissions, 1)
	assert.NotEmpty(t, submissions[0].CardToken)
	assert.NotEmpty(t, submissions[0].IdempotencyKey)
	assert.Equal(t, model.ProviderStripe, submissions[0].Provider)
}

func TestSubmit_BusinessFailure(t *testing.T) {
	ctx := context.Background()
	result := &model.PaymentResult{TransactionID: "tx_2", Status: model.ResultFailed, LinkID: "pl_valid"}
	sut := newCheckout(linkGateway(activeLink("pl_valid"), result))
	assert.NoError(t, sut.Start(ctx, "pl_valid"))

	_, err := sut.Submit(ctx, validForm())
	assert.NoError(t, err)

	snapshot := sut.Snapshot()
	assert.Equal(t, model.StatusFailed, snapshot.Status)
	assert.NotNil(t, snapshot.Result)
	assert.Empty(t, snapshot.ErrorMessage, "a declined payment is an outcome, not an error")
}

func TestSubmit_TransportError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedMessage string
	}{
		{
			name:            "server message is surfaced",
			err:             &gateway.TransportError{StatusCode: 502, Message: "Upstream provider is unavailable"},
			expectedMessage: "Upstream provider is unavailable",
		},
		{
			name:            "missing server message falls back to generic",
			err:             &gateway.TransportError{StatusCode: 500},
			expectedMessage: "Payment could not be processed. Please try again.",
		},
		{
			name:            "plain error falls back to generic",
			err:             errors.New("connection refused"),
			expectedMessage: "Payment could not be processed. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			gw := linkGateway(activeLink("pl_valid"), nil)
			gw.submit = func(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error) {
				return nil, tt.err
			}
			sut := newCheckout(gw)
			assert.NoError(t, sut.Start(ctx, "pl_valid"))

			_, err := sut.Submit(ctx, validForm())
			assert.NoError(t, err)

			snapshot := sut.Snapshot()
			assert.Equal(t, model.StatusErrorRetryable, snapshot.Status)
			assert.Nil(t, snapshot.Result)
			assert.Equal(t, tt.expectedMessage, snapshot.ErrorMessage)
		})
	}
}

func TestSubmit_MissingLinkID(t *testing.T) {
	ctx := context.Background()

	// a link without an ID signals an inconsistent state, not user error
	gw := linkGateway(activeLink(""), nil)
	gw.getLink = func(ctx context.Context, id string) (*model.PaymentLink, error) {
		return activeLink(""), nil
	}
	sut := newCheckout(gw)
	assert.NoError(t, sut.Start(ctx, "pl_valid"))
	assert.Equal(t, model.StatusReadyToPay, sut.Snapshot().Status)

	_, err := sut.Submit(ctx, validForm())
	assert.NoError(t, err)

	snapshot := sut.Snapshot()
	assert.Equal(t, model.StatusErrorRetryable, snapshot.Status)
	assert.Equal(t, "Payment could not be processed. Please try again.", snapshot.ErrorMessage)
	assert.Empty(t, gw.recorded())
}

func TestSubmit_SecondAttemptWhileInFlight(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	gw := linkGateway(activeLink("pl_valid"), nil)
	gw.submit = func(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error) {
		close(entered)
		<-release
		return completedResult(linkID), nil
	}
	sut := newCheckout(gw)
	assert.NoError(t, sut.Start(ctx, "pl_valid"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := sut.Submit(ctx, validForm())
		assert.NoError(t, err)
	}()

	<-entered
	assert.Equal(t, model.StatusProcessingPayment, sut.Snapshot().Status)

	_, err := sut.Submit(ctx, validForm())
	assert.ErrorIs(t, err, checkout.ErrNotReady)

	err = sut.LoadLink(ctx, "pl_other")
	assert.ErrorIs(t, err, checkout.ErrNotReady)

	close(release)
	wg.Wait()

	assert.Equal(t, model.StatusCompleted, sut.Snapshot().Status)
	assert.Len(t, gw.recorded(), 1)
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("from FAILED", func(t *testing.T) {
		result := &model.PaymentResult{TransactionID: "tx_2", Status: model.ResultFailed, LinkID: "pl_valid"}
		sut := newCheckout(linkGateway(activeLink("pl_valid"), result))
		assert.NoError(t, sut.Start(ctx, "pl_valid"))
		_, err := sut.Submit(ctx, validForm())
		assert.NoError(t, err)
		assert.Equal(t, model.StatusFailed, sut.Snapshot().Status)

		assert.NoError(t, sut.Retry(ctx))

		snapshot := sut.Snapshot()
		assert.Equal(t, model.StatusReadyToPay, snapshot.Status)
		assert.Nil(t, snapshot.Result)
		assert.Empty(t, snapshot.ErrorMessage)
	})

	t.Run("from ERROR_RETRYABLE", func(t *testing.T) {
		gw := linkGateway(activeLink("pl_valid"), nil)
		gw.submit = func(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error) {
			return nil, &gateway.TransportError{StatusCode: 502}
		}
		sut := newCheckout(gw)
		assert.NoError(t, sut.Start(ctx, "pl_valid"))
		_, err := sut.Submit(ctx, validForm())
		assert.NoError(t, err)
		assert.Equal(t, model.StatusErrorRetryable, sut.Snapshot().Status)

		assert.NoError(t, sut.Retry(ctx))

		snapshot := sut.Snapshot()
		assert.Equal(t, model.StatusReadyToPay, snapshot.Status)
		assert.Empty(t, snapshot.ErrorMessage)
	})

	t.Run("outside failure states", func(t *testing.T) {
		sut := newCheckout(linkGateway(activeLink("pl_valid"), nil))
		assert.NoError(t, sut.Start(ctx, "pl_valid"))

		assert.ErrorIs(t, sut.Retry(ctx), checkout.ErrNotRetryable)
	})
}

func TestSubmit_RetriedAttemptsUseFreshIdempotencyKeys(t *testing.T) {
	ctx := context.Background()

	gw := linkGateway(activeLink("pl_valid"), nil)
	gw.submit = func(ctx context.Context, linkID string, request model.PaymentRequest) (*model.PaymentResult, error) {
		return nil, &gateway.TransportError{StatusCode: 502}
	}
	sut := newCheckout(gw)
	assert.NoError(t, sut.Start(ctx, "pl_valid"))

	_, err := sut.Submit(ctx, validForm())
	assert.NoError(t, err)
	assert.NoError(t, sut.Retry(ctx))
	_, err = sut.Submit(ctx, validForm())
	assert.NoError(t, err)

	submissions := gw.recorded()
	assert.Len(t, submissions, 2)
	assert.NotEqual(t, submissions[0].IdempotencyKey, submissions[1].IdempotencyKey)
	assert.NotEmpty(t, submissions[0].IdempotencyKey)
}

func TestTotalAmount(t *testing.T) {
	ctx := context.Background()

	t.Run("no link loaded", func(t *testing.T) {
		sut := newCheckout(linkGateway(nil, nil))
		assert.True(t, sut.TotalAmount().IsZero())
	})

	t.Run("rounds half away from zero at the cent", func(t *testing.T) {
		sut := newCheckout(linkGateway(activeLink("pl_valid"), nil))
		assert.NoError(t, sut.Start(ctx, "pl_valid"))

		assert.True(t, sut.TotalAmount().Equal(decimal.RequireFromString("105.56")),
			"100 + 5.555 must round to 105.56, got %s", sut.TotalAmount())
	})
}

func TestSubmit_TransitionSequence(t *testing.T) {
	ctx := context.Background()
	sut := newCheckout(linkGateway(activeLink("pl_valid"), completedResult("pl_valid")))

	var transitions []model.CheckoutStatus
	sut.Subscribe(func(s checkout.Snapshot) {
		transitions = append(transitions, s.Status)
	})

	assert.NoError(t, sut.Start(ctx, "pl_valid"))
	_, err := sut.Submit(ctx, validForm())
	assert.NoError(t, err)

	assert.Equal(t, []model.CheckoutStatus{
		model.StatusLoadingLink,
		model.StatusReadyToPay,
		model.StatusProcessingPayment,
		model.StatusCompleted,
	}, transitions)
}

func validForm() card.Form {
	return card.Form{
		Number:     "4532 0151 1283 0366",
		Expiry:     "12 / 29",
		CVC:        "123",
		HolderName: "Ada Lovelace",
	}
}
