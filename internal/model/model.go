package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CheckoutStatus is the single source of truth for the state of a
// checkout session. Transitions happen only inside the checkout package.
type CheckoutStatus string

const (
	StatusInitializing      CheckoutStatus = "INITIALIZING"
	StatusAwaitingInput     CheckoutStatus = "AWAITING_INPUT"
	StatusLoadingLink       CheckoutStatus = "LOADING_LINK"
	StatusLinkNotFound      CheckoutStatus = "LINK_NOT_FOUND"
	StatusReadyToPay        CheckoutStatus = "READY_TO_PAY"
	StatusProcessingPayment CheckoutStatus = "PROCESSING_PAYMENT"
	StatusCompleted         CheckoutStatus = "COMPLETED"
	StatusFailed            CheckoutStatus = "FAILED"
	StatusErrorRetryable    CheckoutStatus = "ERROR_RETRYABLE"
)

// LinkStatus is the lifecycle status of a payment link, supplied by the gateway.
type LinkStatus string

const (
	LinkStatusDraft     LinkStatus = "DRAFT"
	LinkStatusActive    LinkStatus = "ACTIVE"
	LinkStatusExpired   LinkStatus = "EXPIRED"
	LinkStatusCompleted LinkStatus = "COMPLETED"
	LinkStatusCancelled LinkStatus = "CANCELLED"
)

type Provider string

const (
	ProviderStripe Provider = "STRIPE"
	ProviderAdyen  Provider = "ADYEN"
)

// PaymentResultStatus is the business outcome carried in the payment
// response payload, independent of the transport status.
type PaymentResultStatus string

const (
	ResultCompleted PaymentResultStatus = "COMPLETED"
	ResultFailed    PaymentResultStatus = "FAILED"
)

// PaymentLink is owned by the checkout session once loaded and is never
// mutated in place; a new lookup replaces it wholesale.
type PaymentLink struct {
	ID          string          `json:"id"`
	MerchantID  string          `json:"merchantId"`
	AmountUsd   decimal.Decimal `json:"amountUsd"`
	Status      LinkStatus      `json:"status"`
	Description string          `json:"description"`
	ExpiresAt   *time.Time      `json:"expiresAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	CheckoutUrl string          `json:"checkoutUrl"`
	FeePreview  FeePreview      `json:"feePreview"`
}

// FeePreview is precomputed by the gateway; nothing in it is derived locally.
type FeePreview struct {
	FxRate          decimal.Decimal `json:"fxRate"`
	TotalFeesUsd    decimal.Decimal `json:"totalFeesUsd"`
	RecipientAmount decimal.Decimal `json:"recipientAmount"`
	Breakdown       FeeBreakdown    `json:"breakdown"`
}

type FeeBreakdown struct {
	FixedFeeUsd              decimal.Decimal `json:"fixedFeeUsd"`
	VariableFeeUsd           decimal.Decimal `json:"variableFeeUsd"`
	FxMarkupUsd              decimal.Decimal `json:"fxMarkupUsd"`
	FirstTransactionDiscount decimal.Decimal `json:"firstTransactionDiscount"`
}

type PaymentRequest struct {
	CardToken      string            `json:"cardToken"`
	IdempotencyKey string            `json:"idempotencyKey"`
	Provider       Provider          `json:"provider"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type PaymentResult struct {
	TransactionID   string              `json:"transactionId"`
	Status          PaymentResultStatus `json:"status"`
	LinkID          string              `json:"linkId"`
	Provider        Provider            `json:"provider"`
	AmountUsd       decimal.Decimal     `json:"amountUsd"`
	RecipientAmount decimal.Decimal     `json:"recipientAmount"`
	FxRate          decimal.Decimal     `json:"fxRate"`
	TotalFeesUsd    decimal.Decimal     `json:"totalFeesUsd"`
}
