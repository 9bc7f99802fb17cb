// Package provider wraps external DEX quote APIs behind one uniform contract.
// Adapters differ in transport and credentials but callers only ever see a
// normalized Quote or nil, and tell providers apart by the source label.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Request identifies one probe swap. Amounts are raw integer strings in the
// sell token's smallest unit.
type Request struct {
	SellToken  string
	BuyToken   string
	SellAmount string
}

// Quote is the normalized outcome of one provider call. Raw amounts stay as
// integer strings; they are compared as big integers and must never pass
// through floating point.
type Quote struct {
	SellAmount string
	BuyAmount  string
	Source     string
}

// Adapter is the uniform contract every quote source implements. Quote
// returns nil for every failure mode: network errors, timeouts, malformed
// payloads, missing credentials, and provider-signalled missing liquidity all
// collapse to "no quote". Adapters log their own failures.
type Adapter interface {
	Name() string
	Quote(ctx context.Context, req Request) *Quote
}

// taker is a placeholder address for indicative price requests; it never
// holds tokens and no execution occurs.
const taker = "0x0000000000000000000000000000000000000001"

const defaultTimeout = 10 * time.Second

// newThrottle builds the per-provider limiter that spaces sequential requests
// to the same provider. Zero or negative interval disables throttling.
func newThrottle(minInterval time.Duration) *rate.Limiter {
	if minInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(minInterval), 1)
}

// readBody drains a response body with a sane cap so a misbehaving provider
// cannot balloon memory.
func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, 1<<20))
}

func httpError(source string, status int, payload []byte) error {
	body := strings.TrimSpace(string(payload))
	if body == "" {
		return fmt.Errorf("%s api error (%d)", source, status)
	}
	return fmt.Errorf("%s api error (%d): %s", source, status, body)
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
