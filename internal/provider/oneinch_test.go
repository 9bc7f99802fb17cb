package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestOneInchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/quote" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer portal-token" {
			t.Fatalf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		q := r.URL.Query()
		if q.Get("src") == "" || q.Get("dst") == "" || q.Get("amount") != "1000000000000" {
			t.Fatalf("unexpected query: %v", q)
		}
		_ = json.NewEncoder(w).Encode(oneInchResponse{DstAmount: "999700000000000000000000"})
	}))
	defer srv.Close()

	o := NewOneInch(OneInchOptions{BaseURL: srv.URL, APIKey: "portal-token", Timeout: time.Second}, noopLogger())
	quote := o.Quote(context.Background(), testProbe())
	if quote == nil {
		t.Fatal("expected a quote")
	}
	if quote.BuyAmount != "999700000000000000000000" {
		t.Fatalf("unexpected buy amount %s", quote.BuyAmount)
	}
	if quote.SellAmount != "1000000000000" {
		t.Fatalf("sell amount should echo the request, got %s", quote.SellAmount)
	}
	if quote.Source != "1inch" {
		t.Fatalf("unexpected source %s", quote.Source)
	}
}

func TestOneInchMissingAPIKey(t *testing.T) {
	o := NewOneInch(OneInchOptions{BaseURL: "http://unreachable.invalid"}, noopLogger())
	if quote := o.Quote(context.Background(), testProbe()); quote != nil {
		t.Fatalf("missing api key should yield no quote, got %+v", quote)
	}
}

func TestOneInchZeroAmount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(oneInchResponse{DstAmount: "0"})
	}))
	defer srv.Close()

	o := NewOneInch(OneInchOptions{BaseURL: srv.URL, APIKey: "portal-token", Timeout: time.Second}, noopLogger())
	if quote := o.Quote(context.Background(), testProbe()); quote != nil {
		t.Fatalf("zero destination amount should yield no quote, got %+v", quote)
	}
}

func TestOneInchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	o := NewOneInch(OneInchOptions{BaseURL: srv.URL, APIKey: "portal-token", Timeout: 50 * time.Millisecond}, noopLogger())

	start := time.Now()
	if quote := o.Quote(context.Background(), testProbe()); quote != nil {
		t.Fatalf("a timed-out call should yield no quote, got %+v", quote)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("call should be cancelled at the configured timeout, took %s", elapsed)
	}
}

func TestThrottleSpacesRequests(t *testing.T) {
	limiter := newThrottle(50 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(context.Background()); err != nil {
			t.Fatalf("limiter wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Fatalf("three requests at 50ms spacing should take at least 100ms, took %s", elapsed)
	}
}

func TestThrottleDisabled(t *testing.T) {
	limiter := newThrottle(0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 10; i++ {
		if err := limiter.Wait(ctx); err != nil {
			t.Fatalf("unthrottled limiter should never block: %v", err)
		}
	}
}
