package main

import (
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"checkout-service/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mock of the remote link/payment gateway, used for local runs of the
// checkout service. Replays of an idempotency key return the stored
// result; a small share of submissions is declined or answered with a
// transport-level error so every checkout branch can be exercised.

type server struct {
	mu      sync.Mutex
	links   map[string]model.PaymentLink
	results map[string]model.PaymentResult
}

func main() {
	s := &server{
		links:   seedLinks(),
		results: make(map[string]model.PaymentResult),
	}

	r := gin.Default()
	r.GET("/liveness", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/payment-links/:id", s.getLink)
	r.POST("/payment-links/:id/payments", s.submitPayment)

	if err := r.Run(":8090"); err != nil {
		panic(err)
	}
}

func (s *server) getLink(c *gin.Context) {
	simulateLatency()

	link, ok := s.links[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "payment link not found"})
		return
	}
	c.JSON(http.StatusOK, link)
}

func (s *server) submitPayment(c *gin.Context) {
	simulateLatency()

	link, ok := s.links[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "payment link not found"})
		return
	}

	var req model.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid payment request"})
		return
	}
	if req.IdempotencyKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "idempotency key is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// replayed attempt
	if result, ok := s.results[req.IdempotencyKey]; ok {
		c.JSON(http.StatusOK, result)
		return
	}

	roll := rand.IntN(10)
	if roll == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"message": "Upstream provider is unavailable"})
		return
	}

	status := model.ResultCompleted
	if roll == 1 {
		status = model.ResultFailed
	}

	result := model.PaymentResult{
		TransactionID:   uuid.NewString(),
		Status:          status,
		LinkID:          link.ID,
		Provider:        req.Provider,
		AmountUsd:       link.AmountUsd,
		RecipientAmount: link.FeePreview.RecipientAmount,
		FxRate:          link.FeePreview.FxRate,
		TotalFeesUsd:    link.FeePreview.TotalFeesUsd,
	}
	s.results[req.IdempotencyKey] = result

	c.JSON(http.StatusOK, result)
}

func simulateLatency() {
	time.Sleep(time.Duration(100+rand.IntN(300)) * time.Millisecond)
}

func seedLinks() map[string]model.PaymentLink {
	now := time.Now()

	links := []model.PaymentLink{
		{
			ID:          "pl_coffee_subscription",
			MerchantID:  "merch_blue_bottle",
			AmountUsd:   decimal.RequireFromString("100.00"),
			Status:      model.LinkStatusActive,
			Description: "Monthly coffee subscription",
			CreatedAt:   now.Add(-48 * time.Hour),
			UpdatedAt:   now.Add(-24 * time.Hour),
			CheckoutUrl: "http://localhost:8080/checkout/pl_coffee_subscription",
			FeePreview: model.FeePreview{
				FxRate:          decimal.RequireFromString("17.85"),
				TotalFeesUsd:    decimal.RequireFromString("5.555"),
				RecipientAmount: decimal.RequireFromString("1785.00"),
				Breakdown: model.FeeBreakdown{
					FixedFeeUsd:              decimal.RequireFromString("0.30"),
					VariableFeeUsd:           decimal.RequireFromString("2.90"),
					FxMarkupUsd:              decimal.RequireFromString("3.355"),
					FirstTransactionDiscount: decimal.RequireFromString("-1.00"),
				},
			},
		},
		{
			ID:          "pl_design_invoice",
			MerchantID:  "merch_studio_ora",
			AmountUsd:   decimal.RequireFromString("1250.50"),
			Status:      model.LinkStatusActive,
			Description: "Brand design, final invoice",
			CreatedAt:   now.Add(-6 * time.Hour),
			UpdatedAt:   now.Add(-6 * time.Hour),
			CheckoutUrl: "http://localhost:8080/checkout/pl_design_invoice",
			FeePreview: model.FeePreview{
				FxRate:          decimal.RequireFromString("0.92"),
				TotalFeesUsd:    decimal.RequireFromString("38.77"),
				RecipientAmount: decimal.RequireFromString("1150.46"),
				Breakdown: model.FeeBreakdown{
					FixedFeeUsd:              decimal.RequireFromString("0.30"),
					VariableFeeUsd:           decimal.RequireFromString("36.26"),
					FxMarkupUsd:              decimal.RequireFromString("2.21"),
					FirstTransactionDiscount: decimal.Zero,
				},
			},
		},
	}

	byID := make(map[string]model.PaymentLink, len(links))
	for _, l := range links {
		byID[l.ID] = l
	}
	return byID
}
