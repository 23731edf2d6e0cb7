package yfinance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/errs"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.MarketDataConfig{TimeoutSeconds: 5}, zerolog.Nop(), WithBaseURL(srv.URL))
}

func jsonHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
}

const chartBody = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "AAPL", "regularMarketPrice": 150.25},
      "timestamp": [1700000000, 1700086400, 1700172800],
      "indicators": {
        "quote": [{
          "open":   [148.0, null, 150.0],
          "high":   [151.0, null, 152.5],
          "low":    [147.5, null, 149.0],
          "close":  [150.5, null, 151.75],
          "volume": [52000000, null, 48000000]
        }]
      }
    }],
    "error": null
  }
}`

func TestHistory(t *testing.T) {
	c := newTestClient(t, jsonHandler(chartBody))

	rows, err := c.History(context.Background(), "AAPL", "1y")
	require.NoError(t, err)
	require.Len(t, rows, 2, "null row must be dropped")

	assert.Equal(t, time.Unix(1700000000, 0).UTC(), rows[0].Date)
	assert.InDelta(t, 148.0, rows[0].Open, 1e-9)
	assert.InDelta(t, 150.5, rows[0].Close, 1e-9)
	assert.Equal(t, int64(52000000), rows[0].Volume)
	assert.InDelta(t, 151.75, rows[1].Close, 1e-9)
}

func TestHistoryQueryParams(t *testing.T) {
	var gotRange, gotInterval string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRange = r.URL.Query().Get("range")
		gotInterval = r.URL.Query().Get("interval")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chartBody))
	}))

	_, err := c.History(context.Background(), "AAPL", "6mo")
	require.NoError(t, err)
	assert.Equal(t, "6mo", gotRange)
	assert.Equal(t, "1d", gotInterval)
}

func TestHistoryNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, http.StatusNotFound)
	}))

	_, err := c.History(context.Background(), "ZZZZZ", "1y")
	assert.True(t, errs.IsNotFound(err), "got %v", err)
}

func TestHistoryInBodyNotFound(t *testing.T) {
	body := `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`
	c := newTestClient(t, jsonHandler(body))

	_, err := c.History(context.Background(), "ZZZZZ", "1y")
	assert.True(t, errs.IsNotFound(err), "got %v", err)
}

func TestHistoryRateLimited(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.History(context.Background(), "AAPL", "1y")
	require.True(t, errs.IsRateLimited(err), "got %v", err)
	assert.Equal(t, 30*time.Second, errs.RetryAfter(err))
}

func TestHistoryServerError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))

	_, err := c.History(context.Background(), "AAPL", "1y")
	assert.True(t, errs.IsUnavailable(err), "got %v", err)
	assert.False(t, errs.IsNotFound(err))
}

func TestInfo(t *testing.T) {
	body := `{
  "quoteSummary": {
    "result": [{
      "price": {
        "symbol": "AAPL",
        "shortName": "Apple Inc.",
        "quoteType": "EQUITY",
        "regularMarketPrice": {"raw": 150.25, "fmt": "150.25"},
        "regularMarketVolume": {"raw": 52000000, "fmt": "52M"},
        "marketCap": {"raw": 2400000000000, "fmt": "2.4T"}
      },
      "summaryDetail": {
        "bid": {"raw": 150.20},
        "ask": {"raw": 150.30},
        "fiftyTwoWeekHigh": {"raw": 182.0},
        "fiftyTwoWeekLow": {"raw": 124.0}
      },
      "assetProfile": {"sector": "Technology", "industry": "Consumer Electronics"},
      "calendarEvents": {"earnings": {"earningsDate": [{"raw": 1706000000}]}}
    }],
    "error": null
  }
}`
	c := newTestClient(t, jsonHandler(body))

	info, err := c.Info(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", info.Symbol)
	assert.Equal(t, "Apple Inc.", info.ShortName)
	assert.Equal(t, "EQUITY", info.QuoteType)
	assert.Equal(t, "Technology", info.Sector)
	assert.InDelta(t, 150.25, info.Price, 1e-9)
	assert.InDelta(t, 2.4e12, info.MarketCap, 1)
	assert.InDelta(t, 150.20, info.Bid, 1e-9)
	assert.InDelta(t, 150.30, info.Ask, 1e-9)
	assert.Equal(t, int64(52000000), info.Volume)
	require.NotNil(t, info.EarningsDate)
	assert.Equal(t, time.Unix(1706000000, 0).UTC(), *info.EarningsDate)
}

func TestInfoMissingModules(t *testing.T) {
	// Indexes and some ETFs omit assetProfile and calendarEvents.
	body := `{
  "quoteSummary": {
    "result": [{
      "price": {"symbol": "SPY", "shortName": "SPDR S&P 500", "quoteType": "ETF",
                "regularMarketPrice": {"raw": 450.0}}
    }],
    "error": null
  }
}`
	c := newTestClient(t, jsonHandler(body))

	info, err := c.Info(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, "ETF", info.QuoteType)
	assert.Empty(t, info.Sector)
	assert.Nil(t, info.EarningsDate)
}

func TestExpirations(t *testing.T) {
	body := `{
  "optionChain": {
    "result": [{
      "underlyingSymbol": "AAPL",
      "expirationDates": [1703721600, 1706313600, 1708905600],
      "options": []
    }],
    "error": null
  }
}`
	c := newTestClient(t, jsonHandler(body))

	exps, err := c.Expirations(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, exps, 3)
	assert.Equal(t, time.Unix(1703721600, 0).UTC(), exps[0])
}

func TestOptionChain(t *testing.T) {
	var gotDate string
	body := `{
  "optionChain": {
    "result": [{
      "underlyingSymbol": "AAPL",
      "expirationDates": [1706313600],
      "options": [{
        "expirationDate": 1706313600,
        "calls": [{
          "contractSymbol": "AAPL240127C00150000",
          "strike": 150.0, "lastPrice": 5.25, "bid": 5.20, "ask": 5.30,
          "volume": 1200, "openInterest": 4500,
          "impliedVolatility": 0.2875, "inTheMoney": false,
          "delta": 0.35, "gamma": 0.04, "theta": -0.05, "vega": 0.12, "rho": 0.03
        }],
        "puts": [{
          "contractSymbol": "AAPL240127P00140000",
          "strike": 140.0, "lastPrice": 2.10, "bid": 2.05, "ask": 2.15,
          "volume": 800, "openInterest": 3200,
          "impliedVolatility": 0.31, "inTheMoney": false
        }]
      }]
    }],
    "error": null
  }
}`
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDate = r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	exp := time.Unix(1706313600, 0).UTC()
	chain, err := c.OptionChain(context.Background(), "AAPL", exp)
	require.NoError(t, err)
	assert.Equal(t, "1706313600", gotDate)
	assert.Equal(t, exp, chain.Expiration)

	require.Len(t, chain.Calls, 1)
	call := chain.Calls[0]
	assert.Equal(t, "AAPL240127C00150000", call.ContractSymbol)
	assert.InDelta(t, 0.2875, call.ImpliedVolatility, 1e-9, "IV passes through verbatim")
	require.NotNil(t, call.Delta)
	assert.InDelta(t, 0.35, *call.Delta, 1e-9)

	require.Len(t, chain.Puts, 1)
	assert.Nil(t, chain.Puts[0].Delta, "absent greeks stay nil")
}

func TestRetryAfterHTTPDate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", time.Now().Add(45*time.Second).UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Info(context.Background(), "AAPL")
	require.True(t, errs.IsRateLimited(err))
	hint := errs.RetryAfter(err)
	assert.Greater(t, hint, 30*time.Second)
	assert.LessOrEqual(t, hint, 45*time.Second)
}
