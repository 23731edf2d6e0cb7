package universe

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/optionalpha/optionalpha/internal/domain"
)

// listingEntry is one parsed row of the optionable directory.
type listingEntry struct {
	Symbol string
	Name   string
}

// indexSymbols are pseudo-tickers in the directory with no tradeable
// OHLCV behind them.
var indexSymbols = map[string]struct{}{
	"SPX": {}, "SPXW": {}, "XSP": {}, "VIX": {}, "VIXW": {},
	"NDX": {}, "XND": {}, "RUT": {}, "MRUT": {}, "DJX": {},
	"OEX": {}, "XEO": {}, "BKX": {}, "SOX": {}, "MXEA": {}, "MXEF": {},
}

// knownETFs are high-volume funds that carry company-like names in the
// directory and would otherwise classify as equities.
var knownETFs = map[string]struct{}{
	"SPY": {}, "QQQ": {}, "IWM": {}, "DIA": {}, "GLD": {}, "SLV": {},
	"USO": {}, "TLT": {}, "HYG": {}, "LQD": {}, "JNK": {}, "AGG": {},
	"EEM": {}, "EFA": {}, "FXI": {}, "EWZ": {}, "EWJ": {}, "KWEB": {},
	"XLF": {}, "XLE": {}, "XLK": {}, "XLV": {}, "XLU": {}, "XLI": {},
	"XLP": {}, "XLY": {}, "XLB": {}, "XLRE": {}, "XLC": {},
	"XOP": {}, "XRT": {}, "XHB": {}, "XBI": {}, "IBB": {}, "SMH": {},
	"KRE": {}, "GDX": {}, "GDXJ": {}, "OIH": {}, "ITB": {}, "IYR": {},
	"VXX": {}, "UVXY": {}, "SQQQ": {}, "TQQQ": {}, "ARKK": {},
	"VTI": {}, "VOO": {}, "IVV": {}, "VEA": {}, "VWO": {}, "BND": {},
}

// etfKeywords mark fund-like company names.
var etfKeywords = []string{"ETF", "FUND", "TRUST", "INDEX", "ISHARES", "SPDR", "VANGUARD"}

// parseListing extracts symbol/name pairs from the directory CSV.
// Rows with empty or non-alphabetic symbols are skipped, which
// intentionally drops dotted share classes, and index pseudo-symbols
// are filtered out.
func parseListing(data []byte) ([]listingEntry, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse listing CSV: %w", err)
	}

	entries := make([]listingEntry, 0, len(records))
	for _, record := range records {
		if len(record) < 2 {
			continue
		}
		name := strings.TrimSpace(record[0])
		symbol := strings.ToUpper(strings.TrimSpace(record[1]))
		if symbol == "" || symbol == "STOCK SYMBOL" {
			continue
		}
		if !isAlphabetic(symbol) {
			continue
		}
		if _, ok := indexSymbols[symbol]; ok {
			continue
		}
		entries = append(entries, listingEntry{Symbol: symbol, Name: name})
	}
	return entries, nil
}

func isAlphabetic(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return len(s) > 0
}

// classifyAsset tags a listing row as equity or fund, by symbol first
// and fund-like name keywords second.
func classifyAsset(symbol, name string) domain.AssetType {
	if _, ok := knownETFs[symbol]; ok {
		return domain.AssetETF
	}
	upper := strings.ToUpper(name)
	for _, kw := range etfKeywords {
		if strings.Contains(upper, kw) {
			return domain.AssetETF
		}
	}
	return domain.AssetEquity
}

// gicsSectors are the 11 sector names the filter accepts verbatim.
var gicsSectors = map[string]struct{}{
	"Energy":                 {},
	"Materials":              {},
	"Industrials":            {},
	"Consumer Discretionary": {},
	"Consumer Staples":       {},
	"Health Care":            {},
	"Financials":             {},
	"Information Technology": {},
	"Communication Services": {},
	"Utilities":              {},
	"Real Estate":            {},
}
