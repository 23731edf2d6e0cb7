package yfinance

// Narrow views of the vendor's response envelopes. Only the fields the
// adapter reads are declared; everything else is ignored on decode.

// apiError is the in-body error block the vendor attaches to envelopes.
type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// rawNumber is the vendor's {raw, fmt} numeric wrapper. Absent fields
// decode to zero.
type rawNumber struct {
	Raw float64 `json:"raw"`
}

// chartResponse is the v8 chart envelope.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string  `json:"symbol"`
		RegularMarketPrice float64 `json:"regularMarketPrice"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

// chartQuote carries parallel arrays indexed by Timestamp. Entries are
// pointers because the vendor emits null for halted sessions.
type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

// quoteSummaryResponse is the v10 quoteSummary envelope.
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []quoteSummaryResult `json:"result"`
		Error  *apiError            `json:"error"`
	} `json:"quoteSummary"`
}

type quoteSummaryResult struct {
	Price          *priceModule    `json:"price"`
	SummaryDetail  *summaryDetail  `json:"summaryDetail"`
	AssetProfile   *assetProfile   `json:"assetProfile"`
	CalendarEvents *calendarEvents `json:"calendarEvents"`
}

type priceModule struct {
	Symbol              string    `json:"symbol"`
	ShortName           string    `json:"shortName"`
	QuoteType           string    `json:"quoteType"`
	RegularMarketPrice  rawNumber `json:"regularMarketPrice"`
	RegularMarketVolume rawNumber `json:"regularMarketVolume"`
	MarketCap           rawNumber `json:"marketCap"`
}

type summaryDetail struct {
	Bid              rawNumber `json:"bid"`
	Ask              rawNumber `json:"ask"`
	FiftyTwoWeekHigh rawNumber `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow  rawNumber `json:"fiftyTwoWeekLow"`
}

type assetProfile struct {
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

type calendarEvents struct {
	Earnings struct {
		EarningsDate []rawNumber `json:"earningsDate"`
	} `json:"earnings"`
}

// optionsResponse is the v7 options envelope.
type optionsResponse struct {
	OptionChain struct {
		Result []optionsResult `json:"result"`
		Error  *apiError       `json:"error"`
	} `json:"optionChain"`
}

type optionsResult struct {
	UnderlyingSymbol string        `json:"underlyingSymbol"`
	ExpirationDates  []int64       `json:"expirationDates"`
	Options          []optionSlice `json:"options"`
}

type optionSlice struct {
	ExpirationDate int64         `json:"expirationDate"`
	Calls          []optionQuote `json:"calls"`
	Puts           []optionQuote `json:"puts"`
}

// optionQuote is one contract row. Greeks are pointers; most public
// endpoints omit them entirely.
type optionQuote struct {
	ContractSymbol    string   `json:"contractSymbol"`
	Strike            float64  `json:"strike"`
	LastPrice         float64  `json:"lastPrice"`
	Bid               float64  `json:"bid"`
	Ask               float64  `json:"ask"`
	Volume            int64    `json:"volume"`
	OpenInterest      int64    `json:"openInterest"`
	ImpliedVolatility float64  `json:"impliedVolatility"`
	InTheMoney        bool     `json:"inTheMoney"`
	Delta             *float64 `json:"delta,omitempty"`
	Gamma             *float64 `json:"gamma,omitempty"`
	Theta             *float64 `json:"theta,omitempty"`
	Vega              *float64 `json:"vega,omitempty"`
	Rho               *float64 `json:"rho,omitempty"`
}
