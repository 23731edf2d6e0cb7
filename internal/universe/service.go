// Package universe maintains the optionable-ticker inventory: ingesting
// the exchange directory, classifying members, deactivating tickers that
// drop out of the listing, and serving filtered views to the scanner.
package universe

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/optionalpha/optionalpha/internal/cache"
	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/domain"
	"github.com/optionalpha/optionalpha/internal/errs"
	"github.com/optionalpha/optionalpha/internal/metrics"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/store"
)

//go:embed sp500_fallback.txt
var sp500Fallback string

// Presets are the named universe slices the CLI exposes.
const (
	PresetFull     = "full"
	PresetSP500    = "sp500"
	PresetMidCap   = "midcap"
	PresetSmallCap = "smallcap"
	PresetETFs     = "etfs"
)

// Presets lists the valid preset names.
func Presets() []string {
	return []string{PresetFull, PresetSP500, PresetMidCap, PresetSmallCap, PresetETFs}
}

// ValidPreset reports whether name is a known preset.
func ValidPreset(name string) bool {
	switch name {
	case PresetFull, PresetSP500, PresetMidCap, PresetSmallCap, PresetETFs:
		return true
	}
	return false
}

// ValidSector reports whether name is one of the 11 GICS sectors.
func ValidSector(name string) bool {
	_, ok := gicsSectors[name]
	return ok
}

// RefreshStats summarizes one directory ingestion.
type RefreshStats struct {
	Fetched     int `json:"fetched"`
	Added       int `json:"added"`
	ETFs        int `json:"etfs"`
	Deactivated int `json:"deactivated"`
	Active      int `json:"active"`
	Inactive    int `json:"inactive"`
}

// Stats is the universe breakdown for the stats command.
type Stats struct {
	Total    int                          `json:"total"`
	Active   int                          `json:"active"`
	Inactive int                          `json:"inactive"`
	ByTier   map[domain.MarketCapTier]int `json:"by_tier"`
	BySector map[string]int               `json:"by_sector"`
}

// Service owns the ticker inventory. Refresh is not safe to run
// concurrently with itself; callers serialize.
type Service struct {
	store        *store.Store
	listing      ports.UniverseSource
	constituents ports.ConstituentSource
	cache        *cache.Cache
	cfg          config.UniverseConfig
	logger       zerolog.Logger
}

// NewService wires the inventory against its directory sources and the
// persistent store.
func NewService(st *store.Store, listing ports.UniverseSource, constituents ports.ConstituentSource, dataCache *cache.Cache, cfg config.UniverseConfig) *Service {
	return &Service{
		store:        st,
		listing:      listing,
		constituents: constituents,
		cache:        dataCache,
		cfg:          cfg,
		logger:       config.NewLogger("universe"),
	}
}

// Refresh ingests the optionable directory: parses and classifies every
// row, upserts members as active, and ages out symbols that no longer
// appear. A listing below the safety floor aborts without touching the
// stored universe.
func (s *Service) Refresh(ctx context.Context) (RefreshStats, error) {
	raw, err := s.listing.FetchListing(ctx)
	if err != nil {
		return RefreshStats{}, err
	}
	entries, err := parseListing(raw)
	if err != nil {
		return RefreshStats{}, errs.Unavailable("*", "cboe", err)
	}
	if len(entries) < s.cfg.MinTickers {
		return RefreshStats{}, errs.Unavailable("*", "cboe",
			fmt.Errorf("listing yielded %d tickers, safety floor is %d", len(entries), s.cfg.MinTickers))
	}

	members := s.sp500Members(ctx)

	existing := make(map[string]domain.TickerInfo)
	prior, err := s.store.GetUniverse(ctx, "")
	if err != nil {
		return RefreshStats{}, fmt.Errorf("load prior universe: %w", err)
	}
	for _, t := range prior {
		existing[t.Symbol] = t
	}

	now := time.Now().UTC()
	stats := RefreshStats{Fetched: len(entries)}
	tickers := make([]domain.TickerInfo, 0, len(entries))
	present := make([]string, 0, len(entries))

	for _, e := range entries {
		assetType := classifyAsset(e.Symbol, e.Name)
		info := domain.TickerInfo{
			Symbol:        e.Symbol,
			Name:          e.Name,
			MarketCapTier: s.classifyTier(e.Symbol, assetType, members),
			AssetType:     assetType,
			Source:        "cboe",
			Status:        domain.StatusActive,
			DiscoveredAt:  now,
		}
		if prev, ok := existing[e.Symbol]; ok {
			info.DiscoveredAt = prev.DiscoveredAt
			info.Sector = prev.Sector
			info.Tags = prev.Tags
			info.LastScannedAt = prev.LastScannedAt
			// Scan enrichment refines tiers from live market caps;
			// directory membership alone must not undo that.
			if info.MarketCapTier == domain.TierUnknown && prev.MarketCapTier != domain.TierUnknown {
				info.MarketCapTier = prev.MarketCapTier
			}
		} else {
			stats.Added++
		}
		if assetType == domain.AssetETF {
			stats.ETFs++
		}
		tickers = append(tickers, info)
		present = append(present, e.Symbol)
	}

	if err := s.store.UpsertTickers(ctx, tickers); err != nil {
		return RefreshStats{}, fmt.Errorf("upsert universe: %w", err)
	}
	deactivated, err := s.store.UpdateMissCounts(ctx, present, s.cfg.DeactivateAfter)
	if err != nil {
		return RefreshStats{}, fmt.Errorf("age out missing tickers: %w", err)
	}
	stats.Deactivated = deactivated

	active, err := s.store.GetUniverse(ctx, domain.StatusActive)
	if err != nil {
		return RefreshStats{}, err
	}
	total, err := s.store.GetUniverse(ctx, "")
	if err != nil {
		return RefreshStats{}, err
	}
	stats.Active = len(active)
	stats.Inactive = len(total) - len(active)

	metrics.SetUniverseSize("active", stats.Active)
	metrics.SetUniverseSize("inactive", stats.Inactive)

	s.logger.Info().
		Int("fetched", stats.Fetched).
		Int("added", stats.Added).
		Int("etfs", stats.ETFs).
		Int("deactivated", stats.Deactivated).
		Int("active", stats.Active).
		Msg("Universe refreshed")
	return stats, nil
}

// Preset returns the active members of a named slice.
func (s *Service) Preset(ctx context.Context, name string) ([]domain.TickerInfo, error) {
	active, err := s.store.GetUniverse(ctx, domain.StatusActive)
	if err != nil {
		return nil, err
	}

	switch name {
	case PresetFull:
		return active, nil
	case PresetSP500:
		return filterTickers(active, func(t domain.TickerInfo) bool {
			return t.MarketCapTier == domain.TierLarge || t.MarketCapTier == domain.TierMega
		}), nil
	case PresetMidCap:
		return filterTickers(active, func(t domain.TickerInfo) bool {
			return t.MarketCapTier == domain.TierMid
		}), nil
	case PresetSmallCap:
		return filterTickers(active, func(t domain.TickerInfo) bool {
			return t.MarketCapTier == domain.TierSmall
		}), nil
	case PresetETFs:
		return filterTickers(active, func(t domain.TickerInfo) bool {
			return t.AssetType == domain.AssetETF
		}), nil
	default:
		return nil, fmt.Errorf("unknown universe preset %q", name)
	}
}

// FilterSector returns active members of one GICS sector. Names match
// verbatim; anything off the list yields an empty slice.
func (s *Service) FilterSector(ctx context.Context, sector string) ([]domain.TickerInfo, error) {
	if _, ok := gicsSectors[sector]; !ok {
		return nil, nil
	}
	active, err := s.store.GetUniverse(ctx, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	return filterTickers(active, func(t domain.TickerInfo) bool {
		return t.Sector == sector
	}), nil
}

// Stats breaks the stored universe down by status, tier, and sector.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.store.GetUniverse(ctx, "")
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Total:    len(all),
		ByTier:   make(map[domain.MarketCapTier]int),
		BySector: make(map[string]int),
	}
	for _, t := range all {
		if t.Status == domain.StatusActive {
			stats.Active++
		} else {
			stats.Inactive++
		}
		stats.ByTier[t.MarketCapTier]++
		if t.Sector != "" {
			stats.BySector[t.Sector]++
		}
	}
	return stats, nil
}

// UpdateTickerDetails persists scan-time enrichment (tier and sector
// from live vendor data) for symbols already in the universe.
func (s *Service) UpdateTickerDetails(ctx context.Context, updates []domain.TickerInfo) error {
	if len(updates) == 0 {
		return nil
	}
	existing, err := s.store.GetUniverse(ctx, "")
	if err != nil {
		return err
	}
	bySymbol := make(map[string]domain.TickerInfo, len(existing))
	for _, t := range existing {
		bySymbol[t.Symbol] = t
	}

	merged := make([]domain.TickerInfo, 0, len(updates))
	for _, u := range updates {
		prev, ok := bySymbol[u.Symbol]
		if !ok {
			continue
		}
		if u.MarketCapTier != "" && u.MarketCapTier != domain.TierUnknown {
			prev.MarketCapTier = u.MarketCapTier
		}
		if u.Sector != "" {
			prev.Sector = u.Sector
		}
		if u.LastScannedAt != nil {
			prev.LastScannedAt = u.LastScannedAt
		}
		merged = append(merged, prev)
	}
	if len(merged) == 0 {
		return nil
	}
	return s.store.UpsertTickers(ctx, merged)
}

// sp500Members returns the constituent set, preferring the cache, then
// the live fetch, then the embedded snapshot. Only live fetches are
// cached so a failed fetch retries next refresh.
func (s *Service) sp500Members(ctx context.Context) map[string]struct{} {
	key := cache.Key("sp500", cache.TypeConstituents, "members")
	if raw, ok := s.cache.Get(ctx, key); ok {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return toSet(list)
		}
	}

	list, err := s.constituents.Constituents(ctx)
	if err != nil || len(list) == 0 {
		s.logger.Warn().Err(err).Msg("S&P 500 constituent fetch failed, using embedded snapshot")
		return toSet(fallbackConstituents())
	}

	if raw, err := json.Marshal(list); err == nil {
		ttl := time.Duration(s.cfg.SP500CacheDays) * 24 * time.Hour
		if ttl <= 0 {
			ttl = 7 * 24 * time.Hour
		}
		s.cache.SetWithTTL(ctx, key, raw, ttl)
	}
	return toSet(list)
}

// classifyTier maps directory rows to a coarse tier. Funds tier as ETF,
// index members as large cap; everything else stays unknown until scan
// enrichment fills in a live market cap.
func (s *Service) classifyTier(symbol string, assetType domain.AssetType, members map[string]struct{}) domain.MarketCapTier {
	if assetType == domain.AssetETF {
		return domain.TierETF
	}
	if _, ok := members[symbol]; ok {
		return domain.TierLarge
	}
	return domain.TierUnknown
}

func fallbackConstituents() []string {
	lines := strings.Split(sp500Fallback, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func toSet(symbols []string) map[string]struct{} {
	set := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		set[sym] = struct{}{}
	}
	return set
}

func filterTickers(in []domain.TickerInfo, keep func(domain.TickerInfo) bool) []domain.TickerInfo {
	out := make([]domain.TickerInfo, 0, len(in))
	for _, t := range in {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
