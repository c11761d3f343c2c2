package token

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"checkout-service/internal/model"
	"github.com/google/uuid"
)

const (
	defaultMinDelay = 500 * time.Millisecond
	defaultMaxDelay = 1000 * time.Millisecond
)

// Stub simulates card tokenization against a provider SDK. It sleeps a
// uniformly random duration in [MinDelay, MaxDelay) and always succeeds;
// a real provider client must keep the same signature but may fail.
type Stub struct {
	MinDelay time.Duration
	MaxDelay time.Duration
}

func NewStub() *Stub {
	return &Stub{
		MinDelay: defaultMinDelay,
		MaxDelay: defaultMaxDelay,
	}
}

// CreateToken returns an opaque token encoding the provider and a fresh
// unique ID. Concurrent calls share no state and return distinct tokens.
func (s *Stub) CreateToken(ctx context.Context, provider model.Provider) (string, error) {
	delay := s.MinDelay
	if spread := s.MaxDelay - s.MinDelay; spread > 0 {
		delay += rand.N(spread)
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return fmt.Sprintf("tok_%s_%s", strings.ToLower(string(provider)), uuid.New()), nil
}
