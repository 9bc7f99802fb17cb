package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	cowSource      = "cowswap"
	cowQuotePath   = "/quote"
	zeroAddressHex = "0x0000000000000000000000000000000000000000"
)

// CowOptions parameterise the CoW Protocol adapter.
type CowOptions struct {
	BaseURL      string
	PriceQuality string
	Timeout      time.Duration
	MinInterval  time.Duration
	UserAgent    string
}

// Cow quotes through the CoW Protocol order book API. No credential is
// required; the quote endpoint is public.
type Cow struct {
	opts    CowOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewCow constructs the CoW Protocol adapter.
func NewCow(opts CowOptions, logger zerolog.Logger) *Cow {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.cow.fi/mainnet/api/v1"
	}
	return &Cow{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_cowswap").Logger(),
		client:  newClient(opts.Timeout),
		limiter: newThrottle(opts.MinInterval),
		baseURL: baseURL,
	}
}

// Name returns the static source label.
func (c *Cow) Name() string { return cowSource }

// Quote implements Adapter.
func (c *Cow) Quote(ctx context.Context, req Request) *Quote {
	quote, err := c.fetch(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("sell_token", req.SellToken).
			Str("buy_token", req.BuyToken).
			Msg("no quote")
		return nil
	}
	return quote
}

type cowQuoteRequest struct {
	SellToken           string `json:"sellToken"`
	BuyToken            string `json:"buyToken"`
	Kind                string `json:"kind"`
	From                string `json:"from"`
	AppData             string `json:"appData"`
	PriceQuality        string `json:"priceQuality,omitempty"`
	SellAmountBeforeFee string `json:"sellAmountBeforeFee"`
	ValidTo             uint64 `json:"validTo"`
}

type cowQuoteResponse struct {
	Quote struct {
		SellAmount string `json:"sellAmount"`
		BuyAmount  string `json:"buyAmount"`
	} `json:"quote"`
}

type cowErrorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
}

func (c *Cow) fetch(ctx context.Context, req Request) (*Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload := cowQuoteRequest{
		SellToken:           req.SellToken,
		BuyToken:            req.BuyToken,
		Kind:                "sell",
		From:                zeroAddressHex,
		AppData:             `{"version":"0.7.0","appCode":"pegwatch","metadata":{}}`,
		PriceQuality:        c.opts.PriceQuality,
		SellAmountBeforeFee: req.SellAmount,
		ValidTo:             uint64(time.Now().Add(5 * time.Minute).Unix()),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+cowQuotePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payloadBytes, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr cowErrorResponse
		if json.Unmarshal(payloadBytes, &apiErr) == nil && apiErr.ErrorType != "" {
			return nil, fmt.Errorf("cow api error (%d): %s %s", resp.StatusCode, apiErr.ErrorType, apiErr.Description)
		}
		return nil, httpError(cowSource, resp.StatusCode, payloadBytes)
	}

	var quoteRes cowQuoteResponse
	if err := json.Unmarshal(payloadBytes, &quoteRes); err != nil {
		return nil, fmt.Errorf("decode cow response: %w", err)
	}
	if quoteRes.Quote.BuyAmount == "" || quoteRes.Quote.BuyAmount == "0" {
		return nil, errors.New("cow returned no buy amount")
	}

	// CoW normalizes the sell side by its fee; echo back the amount the
	// quote actually priced.
	sellAmount := quoteRes.Quote.SellAmount
	if sellAmount == "" {
		sellAmount = req.SellAmount
	}

	return &Quote{
		SellAmount: sellAmount,
		BuyAmount:  quoteRes.Quote.BuyAmount,
		Source:     cowSource,
	}, nil
}

var _ Adapter = (*Cow)(nil)
