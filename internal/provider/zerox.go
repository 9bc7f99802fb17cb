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

const zeroxSource = "0x"

// ZeroXOptions parameterise the 0x Swap API adapter.
type ZeroXOptions struct {
	BaseURL     string
	APIKey      string
	ChainID     int64
	Timeout     time.Duration
	MinInterval time.Duration
	UserAgent   string
}

// ZeroX quotes through the 0x allowance-holder price endpoint. The API key is
// mandatory; config validation rejects an enabled 0x adapter without one.
type ZeroX struct {
	opts    ZeroXOptions
	logger  zerolog.Logger
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// NewZeroX constructs the 0x adapter.
func NewZeroX(opts ZeroXOptions, logger zerolog.Logger) *ZeroX {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.0x.org"
	}
	if opts.ChainID == 0 {
		opts.ChainID = 1
	}
	return &ZeroX{
		opts:    opts,
		logger:  logger.With().Str("component", "provider_0x").Logger(),
		client:  newClient(opts.Timeout),
		limiter: newThrottle(opts.MinInterval),
		baseURL: baseURL,
	}
}

// Name returns the static source label.
func (z *ZeroX) Name() string { return zeroxSource }

// Quote implements Adapter.
func (z *ZeroX) Quote(ctx context.Context, req Request) *Quote {
	quote, err := z.fetch(ctx, req)
	if err != nil {
		z.logger.Warn().Err(err).
			Str("sell_token", req.SellToken).
			Str("buy_token", req.BuyToken).
			Msg("no quote")
		return nil
	}
	return quote
}

type zeroxResponse struct {
	BuyAmount          string `json:"buyAmount"`
	SellAmount         string `json:"sellAmount"`
	LiquidityAvailable *bool  `json:"liquidityAvailable"`
}

func (z *ZeroX) fetch(ctx context.Context, req Request) (*Quote, error) {
	if z.opts.APIKey == "" {
		return nil, errors.New("0x api key not configured")
	}

	if err := z.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timeout := z.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(z.opts.ChainID, 10))
	params.Set("sellToken", req.SellToken)
	params.Set("buyToken", req.BuyToken)
	params.Set("sellAmount", req.SellAmount)
	params.Set("taker", taker)

	endpoint := z.baseURL + "/swap/allowance-holder/price?" + params.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("0x-api-key", z.opts.APIKey)
	httpReq.Header.Set("0x-version", "v2")
	httpReq.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(z.opts.UserAgent); ua != "" {
		httpReq.Header.Set("User-Agent", ua)
	}

	resp, err := z.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(zeroxSource, resp.StatusCode, payload)
	}

	var body zeroxResponse
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode 0x response: %w", err)
	}

	// An explicit liquidityAvailable=false is a valid response carrying no
	// usable price, not a zero-amount quote.
	if body.LiquidityAvailable != nil && !*body.LiquidityAvailable {
		return nil, errors.New("0x reported no liquidity")
	}
	if body.BuyAmount == "" {
		return nil, errors.New("0x response missing buyAmount")
	}

	sellAmount := body.SellAmount
	if sellAmount == "" {
		sellAmount = req.SellAmount
	}

	return &Quote{
		SellAmount: sellAmount,
		BuyAmount:  body.BuyAmount,
		Source:     zeroxSource,
	}, nil
}

var _ Adapter = (*ZeroX)(nil)
