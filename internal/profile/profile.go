// Package profile reads reusable scan setups from YAML. A profile names
// a universe preset and carries score, weight, and catalyst overrides;
// schema changes ride a semver version so old documents keep loading
// through registered migrations.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/optionalpha/optionalpha/internal/config"
	"github.com/optionalpha/optionalpha/internal/ports"
	"github.com/optionalpha/optionalpha/internal/universe"
)

// SchemaVersion is the profile schema this build reads and writes.
const SchemaVersion = "1.1.0"

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// CatalystOverrides adjusts the earnings-proximity coefficients. Nil
// fields keep the engine's configured values.
type CatalystOverrides struct {
	ImminentDays    *int     `yaml:"imminent_days,omitempty"`
	NearDays        *int     `yaml:"near_days,omitempty"`
	MediumDays      *int     `yaml:"medium_days,omitempty"`
	ImminentPenalty *float64 `yaml:"imminent_penalty,omitempty"`
	NearPenalty     *float64 `yaml:"near_penalty,omitempty"`
	MediumPenalty   *float64 `yaml:"medium_penalty,omitempty"`
}

// Profile is one reusable scan setup. Zero MinScore and TopN defer to
// the engine configuration; Weights merge over the configured weights
// rather than replacing them.
type Profile struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description,omitempty"`
	SchemaVersion string             `yaml:"schema_version"`
	Preset        string             `yaml:"preset,omitempty"`
	Sectors       []string           `yaml:"sectors,omitempty"`
	MinScore      float64            `yaml:"min_score,omitempty"`
	TopN          int                `yaml:"top_n,omitempty"`
	Weights       map[string]float64 `yaml:"weights,omitempty"`
	Catalyst      *CatalystOverrides `yaml:"catalyst,omitempty"`
}

// migrationFunc rewrites a raw document in place.
type migrationFunc func(doc map[string]any) error

// migrations maps a target version to the rewrite that produces it.
// A document older than the key gets the rewrite.
var migrations = map[string]migrationFunc{
	// 1.0 called the result cap max_results.
	"1.1": migrateMaxResults,
}

func migrateMaxResults(doc map[string]any) error {
	v, ok := doc["max_results"]
	if !ok {
		return nil
	}
	if _, exists := doc["top_n"]; !exists {
		doc["top_n"] = v
	}
	delete(doc, "max_results")
	return nil
}

// parseVersion is lenient about short version strings like "1.0".
func parseVersion(raw string) (*semver.Version, error) {
	v, err := semver.NewVersion(raw)
	if err != nil {
		v, err = semver.NewVersion(raw + ".0")
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %q", raw)
		}
	}
	return v, nil
}

// CheckCompatibility reports whether a document at the given version can
// be loaded: same major always, newer major never.
func CheckCompatibility(version string) error {
	if version == "" {
		return fmt.Errorf("profile: missing schema_version (current is %s)", SchemaVersion)
	}
	current, err := parseVersion(version)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	target := semver.MustParse(SchemaVersion)

	if current.Major() > target.Major() {
		return fmt.Errorf("profile: schema version %s is newer than supported %s", version, SchemaVersion)
	}
	if current.Major() < target.Major() {
		return fmt.Errorf("profile: no migration path from schema version %s to %s", version, SchemaVersion)
	}
	return nil
}

// Parse decodes one YAML document, migrates it to the current schema,
// and validates it.
func Parse(data []byte) (Profile, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Profile{}, fmt.Errorf("profile: parse yaml: %w", err)
	}
	version, _ := doc["schema_version"].(string)
	if err := CheckCompatibility(version); err != nil {
		return Profile{}, err
	}
	if err := migrate(doc, version); err != nil {
		return Profile{}, err
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: remarshal: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("profile: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// migrate applies the registered rewrites in version order and stamps
// the document with the current schema version.
func migrate(doc map[string]any, version string) error {
	current, err := parseVersion(version)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	type step struct {
		version *semver.Version
		apply   migrationFunc
	}
	steps := make([]step, 0, len(migrations))
	for v, fn := range migrations {
		mv, err := parseVersion(v)
		if err != nil {
			continue
		}
		steps = append(steps, step{version: mv, apply: fn})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version.LessThan(steps[j].version) })

	for _, s := range steps {
		if current.LessThan(s.version) {
			if err := s.apply(doc); err != nil {
				return fmt.Errorf("profile: migration to %s failed: %w", s.version, err)
			}
		}
	}

	doc["schema_version"] = SchemaVersion
	return nil
}

// Validate rejects profiles the pipeline cannot serve.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name is empty")
	}
	if p.Preset != "" && !universe.ValidPreset(p.Preset) {
		return fmt.Errorf("profile %s: unknown preset %q (valid: %v)", p.Name, p.Preset, universe.Presets())
	}
	for _, s := range p.Sectors {
		if !universe.ValidSector(s) {
			return fmt.Errorf("profile %s: %q is not a GICS sector", p.Name, s)
		}
	}
	if p.MinScore < 0 || p.MinScore > 1 {
		return fmt.Errorf("profile %s: min_score %.3f outside [0, 1]", p.Name, p.MinScore)
	}
	if p.TopN < 0 {
		return fmt.Errorf("profile %s: top_n %d is negative", p.Name, p.TopN)
	}
	for name, w := range p.Weights {
		if w < 0 {
			return fmt.Errorf("profile %s: weight %s is negative", p.Name, name)
		}
	}
	if c := p.Catalyst; c != nil {
		for name, d := range map[string]*int{
			"imminent_days": c.ImminentDays, "near_days": c.NearDays, "medium_days": c.MediumDays,
		} {
			if d != nil && *d <= 0 {
				return fmt.Errorf("profile %s: catalyst %s must be positive", p.Name, name)
			}
		}
		for name, pen := range map[string]*float64{
			"imminent_penalty": c.ImminentPenalty, "near_penalty": c.NearPenalty, "medium_penalty": c.MediumPenalty,
		} {
			if pen != nil && (*pen < 0 || *pen > 1) {
				return fmt.Errorf("profile %s: catalyst %s outside [0, 1]", p.Name, name)
			}
		}
	}
	return nil
}

// Apply overlays the profile onto a copy of the engine configuration.
// The original is never touched.
func (p Profile) Apply(cfg *config.Config) *config.Config {
	out := *cfg

	if p.Preset != "" {
		out.Scan.DefaultPreset = p.Preset
	}
	if p.TopN > 0 {
		out.Scan.TopN = p.TopN
	}
	if p.MinScore > 0 {
		out.Scoring.MinScore = p.MinScore
	}
	if len(p.Weights) > 0 {
		merged := make(map[string]float64, len(cfg.Scoring.Weights)+len(p.Weights))
		for k, v := range cfg.Scoring.Weights {
			merged[k] = v
		}
		for k, v := range p.Weights {
			merged[k] = v
		}
		out.Scoring.Weights = merged
	}
	if c := p.Catalyst; c != nil {
		if c.ImminentDays != nil {
			out.Catalyst.ImminentDays = *c.ImminentDays
		}
		if c.NearDays != nil {
			out.Catalyst.NearDays = *c.NearDays
		}
		if c.MediumDays != nil {
			out.Catalyst.MediumDays = *c.MediumDays
		}
		if c.ImminentPenalty != nil {
			out.Catalyst.ImminentPenalty = *c.ImminentPenalty
		}
		if c.NearPenalty != nil {
			out.Catalyst.NearPenalty = *c.NearPenalty
		}
		if c.MediumPenalty != nil {
			out.Catalyst.MediumPenalty = *c.MediumPenalty
		}
	}
	return &out
}

// Request turns the profile into a scan request. Zero fields defer to
// the pipeline's normalization.
func (p Profile) Request() ports.ScanRequest {
	sectors := make([]string, len(p.Sectors))
	copy(sectors, p.Sectors)
	return ports.ScanRequest{
		Preset:   p.Preset,
		Sectors:  sectors,
		MinScore: p.MinScore,
		TopN:     p.TopN,
	}
}

// Load reads and parses one profile file.
func Load(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Profile{}, fmt.Errorf("%w (file %s)", err, path)
	}
	return p, nil
}

// LoadDir parses every .yaml/.yml file in dir, sorted by filename.
func LoadDir(dir string) ([]Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("profile: read dir %s: %w", dir, err)
	}
	var out []Profile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
		default:
			continue
		}
		p, err := Load(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Defaults returns the embedded profiles shipped with the engine.
func Defaults() ([]Profile, error) {
	entries, err := defaultsFS.ReadDir("defaults")
	if err != nil {
		return nil, fmt.Errorf("profile: embedded defaults: %w", err)
	}
	out := make([]Profile, 0, len(entries))
	for _, e := range entries {
		data, err := defaultsFS.ReadFile("defaults/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("profile: embedded %s: %w", e.Name(), err)
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w (embedded %s)", err, e.Name())
		}
		out = append(out, p)
	}
	return out, nil
}

// Resolve finds a profile by name: the user directory wins over the
// embedded defaults. An empty dir searches only the defaults.
func Resolve(name, dir string) (Profile, error) {
	if dir != "" {
		if profiles, err := LoadDir(dir); err == nil {
			for _, p := range profiles {
				if p.Name == name {
					return p, nil
				}
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Profile{}, err
		}
	}
	defaults, err := Defaults()
	if err != nil {
		return Profile{}, err
	}
	for _, p := range defaults {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("profile: no profile named %q", name)
}
