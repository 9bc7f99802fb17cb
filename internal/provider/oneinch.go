package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const oneInchSource = "1inch"

// OneInchOptions parameterise the 1inch aggregation API adapter.
type OneInchOptions struct {
	BaseURL     string
	APIKey      string
	ChainID     int64
	Timeout     time.Duration
	MinInterval time.Duration
	UserAgent   string
}

// OneInch quotes through the 1inch swap API. Requires a bearer token from the
// 1inch developer portal.
type OneInch struct {
	opts    OneInchOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewOneInch constructs the 1inch adapter.
func NewOneInch(opts OneInchOptions, logger zerolog.Logger) *OneInch {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.1inch.dev/swap/v6.0"
	}
	if opts.ChainID == 0 {
		opts.ChainID = 1
	}
	return &OneInch{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_1inch").Logger(),
		client:  newClient(opts.Timeout),
		limiter: newThrottle(opts.MinInterval),
		baseURL: baseURL,
	}
}

// Name returns the static source label.
func (o *OneInch) Name() string { return oneInchSource }

// Quote implements Adapter.
func (o *OneInch) Quote(ctx context.Context, req Request) *Quote {
	quote, err := o.fetch(ctx, req)
	if err != nil {
		o.logger.Warn().Err(err).
			Str("sell_token", req.SellToken).
			Str("buy_token", req.BuyToken).
			Msg("no quote")
		return nil
	}
	return quote
}

type oneInchResponse struct {
	DstAmount string `json:"dstAmount"`
}

func (o *OneInch) fetch(ctx context.Context, req Request) (*Quote, error) {
	if o.opts.APIKey == "" {
		return nil, errors.New("1inch api key not configured")
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	params.Set("src", req.SellToken)
	params.Set("dst", req.BuyToken)
	params.Set("amount", req.SellAmount)

	endpoint := fmt.Sprintf("%s/%s/quote?%s", o.baseURL, strconv.FormatInt(o.opts.ChainID, 10), params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.opts.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(oneInchSource, resp.StatusCode, payload)
	}

	var body oneInchResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode 1inch response: %w", err)
	}
	if body.DstAmount == "" || body.DstAmount == "0" {
		return nil, errors.New("1inch returned no destination amount")
	}

	// 1inch does not echo the source amount; the request amount is what it
	// priced.
	return &Quote{
		SellAmount: req.SellAmount,
		BuyAmount:  body.DstAmount,
		Source:     oneInchSource,
	}, nil
}

var _ Adapter = (*OneInch)(nil)
