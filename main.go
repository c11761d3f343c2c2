package main

import (
	"log"
	"net/http"
	"time"

	"checkout-service/internal/config"
	"checkout-service/internal/gateway"
	"checkout-service/internal/handler"
	"checkout-service/internal/logging"
	"checkout-service/internal/metrics"
	"checkout-service/internal/model"
	"checkout-service/internal/session"
	"checkout-service/internal/token"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoadConfig(".")

	logger := logging.GetLogger(cfg.Logs)

	metrics.Setup(cfg.Metrics)

	gatewayClient := gateway.NewClient(
		cfg.Gateway.URL,
		time.Duration(cfg.Gateway.TimeoutMs)*time.Millisecond,
		logger,
	)

	tokenizer := token.NewStub()
	if cfg.Tokenizer.MinDelayMs > 0 {
		tokenizer.MinDelay = time.Duration(cfg.Tokenizer.MinDelayMs) * time.Millisecond
	}
	if cfg.Tokenizer.MaxDelayMs > 0 {
		tokenizer.MaxDelay = time.Duration(cfg.Tokenizer.MaxDelayMs) * time.Millisecond
	}

	store := session.NewStore()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h := handler.New(store, gatewayClient, tokenizer, model.Provider(cfg.Checkout.Provider), logger)
	h.Register(mux)

	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}
