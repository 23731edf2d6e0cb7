// Package yfinance is the concrete market-data vendor adapter: chart v8
// for OHLCV history, quoteSummary v10 for ticker info, options v7 for
// expirations and chains. It implements ports.VendorAPI and maps HTTP
// failures onto the typed error taxonomy. The adapter performs no
// retries and no pacing of its own; both belong to the calling services.
package yfinance

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/ports"
)

// Source is the name stamped on errors this adapter produces.
const Source = "yfinance"

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	// The vendor rejects default Go user agents.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Client talks to the vendor REST endpoints.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

var _ ports.VendorAPI = (*Client)(nil)

// Option tweaks client construction.
type Option func(*Client)

// WithBaseURL points the client at a different endpoint root. Tests use
// this to target an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.http.SetBaseURL(u) }
}

// NewClient builds the vendor client.
func NewClient(cfg config.MarketDataConfig, logger zerolog.Logger, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(defaultBaseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json")

	c := &Client{http: httpClient, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History returns daily OHLCV rows for a lookback period such as "1y".
// Rows the vendor nulls out (halted sessions) are dropped.
func (c *Client) History(ctx context.Context, symbol, period string) ([]ports.HistoryRow, error) {
	var out chartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"range":    period,
			"interval": "1d",
			"events":   "div,splits",
		}).
		SetResult(&out).
		Get("/v8/finance/chart/" + symbol)
	if err := c.checkResponse(symbol, resp, err); err != nil {
		return nil, err
	}
	if out.Chart.Error != nil {
		return nil, c.mapAPIError(symbol, out.Chart.Error)
	}
	if len(out.Chart.Result) == 0 {
		return nil, errs.NotFound(symbol, Source)
	}

	res := out.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, errs.Unavailable(symbol, Source, fmt.Errorf("chart result has no quote block"))
	}
	q := res.Indicators.Quote[0]

	rows := make([]ports.HistoryRow, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(q.Open) || i >= len(q.High) || i >= len(q.Low) || i >= len(q.Close) {
			break
		}
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil {
			continue
		}
		var vol int64
		if i < len(q.Volume) && q.Volume[i] != nil {
			vol = *q.Volume[i]
		}
		rows = append(rows, ports.HistoryRow{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   *q.Open[i],
			High:   *q.High[i],
			Low:    *q.Low[i],
			Close:  *q.Close[i],
			Volume: vol,
		})
	}

	c.logger.Debug().Str("symbol", symbol).Str("period", period).
		Int("rows", len(rows)).Msg("history fetched")
	return rows, nil
}

// Info returns the flat ticker summary from the price, summaryDetail,
// assetProfile, and calendarEvents modules.
func (c *Client) Info(ctx context.Context, symbol string) (ports.InfoFields, error) {
	var out quoteSummaryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("modules", "price,summaryDetail,assetProfile,calendarEvents").
		SetResult(&out).
		Get("/v10/finance/quoteSummary/" + symbol)
	if err := c.checkResponse(symbol, resp, err); err != nil {
		return ports.InfoFields{}, err
	}
	if out.QuoteSummary.Error != nil {
		return ports.InfoFields{}, c.mapAPIError(symbol, out.QuoteSummary.Error)
	}
	if len(out.QuoteSummary.Result) == 0 {
		return ports.InfoFields{}, errs.NotFound(symbol, Source)
	}

	res := out.QuoteSummary.Result[0]
	info := ports.InfoFields{Symbol: symbol}
	if p := res.Price; p != nil {
		if p.Symbol != "" {
			info.Symbol = p.Symbol
		}
		info.ShortName = p.ShortName
		info.QuoteType = p.QuoteType
		info.Price = p.RegularMarketPrice.Raw
		info.MarketCap = p.MarketCap.Raw
		info.Volume = int64(p.RegularMarketVolume.Raw)
	}
	if d := res.SummaryDetail; d != nil {
		info.Bid = d.Bid.Raw
		info.Ask = d.Ask.Raw
		info.FiftyTwoWeekHigh = d.FiftyTwoWeekHigh.Raw
		info.FiftyTwoWeekLow = d.FiftyTwoWeekLow.Raw
	}
	if a := res.AssetProfile; a != nil {
		info.Sector = a.Sector
		info.Industry = a.Industry
	}
	if ce := res.CalendarEvents; ce != nil && len(ce.Earnings.EarningsDate) > 0 {
		t := time.Unix(int64(ce.Earnings.EarningsDate[0].Raw), 0).UTC()
		info.EarningsDate = &t
	}
	return info, nil
}

// Expirations returns the available option expiration dates in UTC.
func (c *Client) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	res, err := c.fetchOptions(ctx, symbol, nil)
	if err != nil {
		return nil, err
	}
	exps := make([]time.Time, 0, len(res.ExpirationDates))
	for _, ts := range res.ExpirationDates {
		exps = append(exps, time.Unix(ts, 0).UTC())
	}
	return exps, nil
}

// OptionChain returns calls and puts for one expiration. Implied
// volatility passes through verbatim; it arrives annualized.
func (c *Client) OptionChain(ctx context.Context, symbol string, expiration time.Time) (ports.ChainSlice, error) {
	res, err := c.fetchOptions(ctx, symbol, &expiration)
	if err != nil {
		return ports.ChainSlice{}, err
	}
	if len(res.Options) == 0 {
		return ports.ChainSlice{Expiration: expiration.UTC()}, nil
	}

	sl := res.Options[0]
	chain := ports.ChainSlice{
		Expiration: time.Unix(sl.ExpirationDate, 0).UTC(),
		Calls:      convertRows(sl.Calls),
		Puts:       convertRows(sl.Puts),
	}
	c.logger.Debug().Str("symbol", symbol).Time("expiration", chain.Expiration).
		Int("calls", len(chain.Calls)).Int("puts", len(chain.Puts)).Msg("chain fetched")
	return chain, nil
}

func (c *Client) fetchOptions(ctx context.Context, symbol string, expiration *time.Time) (optionsResult, error) {
	req := c.http.R().SetContext(ctx)
	if expiration != nil {
		req.SetQueryParam("date", strconv.FormatInt(expiration.Unix(), 10))
	}

	var out optionsResponse
	resp, err := req.SetResult(&out).Get("/v7/finance/options/" + symbol)
	if err := c.checkResponse(symbol, resp, err); err != nil {
		return optionsResult{}, err
	}
	if out.OptionChain.Error != nil {
		return optionsResult{}, c.mapAPIError(symbol, out.OptionChain.Error)
	}
	if len(out.OptionChain.Result) == 0 {
		return optionsResult{}, errs.NotFound(symbol, Source)
	}
	return out.OptionChain.Result[0], nil
}

func convertRows(quotes []optionQuote) []ports.OptionRow {
	rows := make([]ports.OptionRow, len(quotes))
	for i, q := range quotes {
		rows[i] = ports.OptionRow{
			ContractSymbol:    q.ContractSymbol,
			Strike:            q.Strike,
			Bid:               q.Bid,
			Ask:               q.Ask,
			LastPrice:         q.LastPrice,
			Volume:            q.Volume,
			OpenInterest:      q.OpenInterest,
			ImpliedVolatility: q.ImpliedVolatility,
			InTheMoney:        q.InTheMoney,
			Delta:             q.Delta,
			Gamma:             q.Gamma,
			Theta:             q.Theta,
			Vega:              q.Vega,
			Rho:               q.Rho,
		}
	}
	return rows
}

// checkResponse maps transport errors and HTTP statuses onto the typed
// taxonomy. A nil return means status 200 with a decoded body.
func (c *Client) checkResponse(symbol string, resp *resty.Response, err error) error {
	if err != nil {
		return errs.Unavailable(symbol, Source, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return errs.NotFound(symbol, Source)
	case http.StatusTooManyRequests:
		return errs.RateLimited(symbol, Source, retryAfterHint(resp))
	default:
		return errs.Unavailable(symbol, Source,
			fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 200)))
	}
}

// mapAPIError handles the in-body error envelope some routes return
// alongside a 200 status.
func (c *Client) mapAPIError(symbol string, apiErr *apiError) error {
	if strings.EqualFold(apiErr.Code, "Not Found") {
		return errs.NotFound(symbol, Source)
	}
	return errs.Unavailable(symbol, Source,
		fmt.Errorf("%s: %s", apiErr.Code, apiErr.Description))
}

// retryAfterHint parses a Retry-After header carrying delta-seconds or
// an HTTP date. Absent or unparseable headers yield zero.
func retryAfterHint(resp *resty.Response) time.Duration {
	v := resp.Header().Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
