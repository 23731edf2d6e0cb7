package universe

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/errs"
)

const sourceTimeout = 30 * time.Second

// ListingClient pulls the exchange's optionable-equity directory CSV.
type ListingClient struct {
	http *resty.Client
	url  string
}

// NewListingClient builds the directory fetcher from config.
func NewListingClient(cfg config.UniverseConfig) *ListingClient {
	return &ListingClient{
		http: resty.New().SetTimeout(sourceTimeout),
		url:  cfg.CSVURL,
	}
}

// FetchListing returns the raw CSV body.
func (c *ListingClient) FetchListing(ctx context.Context) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, errs.Unavailable("*", "cboe", err)
	}
	if resp.StatusCode() != 200 {
		return nil, errs.Unavailable("*", "cboe", fmt.Errorf("listing fetch returned HTTP %d", resp.StatusCode()))
	}
	return resp.Body(), nil
}

// SP500Client pulls the S&P 500 constituent CSV. Only the first column
// (the symbol) is consumed.
type SP500Client struct {
	http *resty.Client
	url  string
}

// NewSP500Client builds the constituent fetcher from config.
func NewSP500Client(cfg config.UniverseConfig) *SP500Client {
	return &SP500Client{
		http: resty.New().SetTimeout(sourceTimeout),
		url:  cfg.SP500URL,
	}
}

// Constituents returns the member symbols.
func (c *SP500Client) Constituents(ctx context.Context) ([]string, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, errs.Unavailable("*", "sp500", err)
	}
	if resp.StatusCode() != 200 {
		return nil, errs.Unavailable("*", "sp500", fmt.Errorf("constituent fetch returned HTTP %d", resp.StatusCode()))
	}

	reader := csv.NewReader(strings.NewReader(string(resp.Body())))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, errs.Unavailable("*", "sp500", fmt.Errorf("constituent CSV malformed: %w", err))
	}

	symbols := make([]string, 0, len(records))
	for i, record := range records {
		if len(record) == 0 {
			continue
		}
		symbol := strings.ToUpper(strings.TrimSpace(record[0]))
		if symbol == "" || (i == 0 && symbol == "SYMBOL") {
			continue
		}
		symbols = append(symbols, symbol)
	}
	return symbols, nil
}
