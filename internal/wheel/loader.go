// Package wheel loads wheel definitions, balances their sectors and serves
// the active catalogue.
package wheel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"lucky-wheel/internal/model"
	"lucky-wheel/internal/pkg/metrics"
)

// Sector defaults applied when a definition leaves a field out.
const (
	DefaultColor    = "#FFFFFF"
	DefaultMessage  = "You won... something?"
	DefaultFunction = "builtins.default"
)

// Errors returned while parsing definitions.
var (
	ErrNoSectors     = errors.New("wheel has no sectors")
	ErrInvalidNumber = errors.New("jackpot number must be at least 1")
)

// Wheel is one loaded version of a wheel definition.
type Wheel struct {
	Slug       string
	Title      string
	Version    string
	TicketOnly bool
	Sectors    []model.Sector
	Violations int
	Source     string
}

// Refs returns the distinct function references used by the wheel.
func (w *Wheel) Refs() []string {
	seen := make(map[string]bool)
	var refs []string
	for _, s := range w.Sectors {
		if !seen[s.Function] {
			seen[s.Function] = true
			refs = append(refs, s.Function)
		}
	}
	sort.Strings(refs)
	return refs
}

// definition is the decoded layout of jackpots_<slug>.json|yaml.
// Either sequence (already ordered, used verbatim) or jackpots (weighted, expanded and balanced) is set.
type definition struct {
	URL        string
	Slug       string
	Title      string
	TicketOnly bool
	Sequence   []sectorEntry
	Jackpots   []jackpot
}

// jackpot is one weighted entry, in document order.
type jackpot struct {
	label string
	entry sectorEntry
}

type yamlFile struct {
	URL        string        `yaml:"url"`
	Slug       string        `yaml:"slug"`
	Title      string        `yaml:"title"`
	TicketOnly bool          `yaml:"ticket_only"`
	Sequence   []sectorEntry `yaml:"sequence"`
	Jackpots   yaml.Node     `yaml:"jackpots"`
}

type jsonFile struct {
	URL        string          `json:"url"`
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	TicketOnly bool            `json:"ticket_only"`
	Sequence   []sectorEntry   `json:"sequence"`
	Jackpots   json.RawMessage `json:"jackpots"`
}

type sectorEntry struct {
	Label    string         `yaml:"label" json:"label"`
	Color    string         `yaml:"color" json:"color"`
	Message  string         `yaml:"message" json:"message"`
	Function string         `yaml:"function" json:"function"`
	Args     map[string]any `yaml:"args" json:"args"`
	Number   *int           `yaml:"number" json:"number"`
}

func (e sectorEntry) sector(label string) model.Sector {
	s := model.Sector{
		Label:    label,
		Color:    e.Color,
		Message:  e.Message,
		Function: e.Function,
		Args:     e.Args,
	}
	if s.Color == "" {
		s.Color = DefaultColor
	}
	if s.Message == "" {
		s.Message = DefaultMessage
	}
	if s.Function == "" {
		s.Function = DefaultFunction
	}
	if s.Args == nil {
		s.Args = map[string]any{}
	}
	return s
}

// Loader reads wheel definition files.
type Loader struct {
	balancer *Balancer
	balance  bool
}

// NewLoader creates a Loader. When balance is false weighted wheels keep their expansion order.
func NewLoader(balancer *Balancer, balance bool) *Loader {
	return &Loader{balancer: balancer, balance: balance}
}

// LoadDir loads every jackpots_* definition in dir. Each wheel gets a fresh version id.
func (l *Loader) LoadDir(dir string) (map[string]*Wheel, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read wheels dir %s: %w", dir, err)
	}

	wheels := make(map[string]*Wheel)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isDefinition(name) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		w, err := l.Parse(name, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		w.Source = path
		if other, dup := wheels[w.Slug]; dup {
			return nil, fmt.Errorf("%s: slug %q already defined by %s", name, w.Slug, filepath.Base(other.Source))
		}
		wheels[w.Slug] = w
	}
	return wheels, nil
}

// Parse decodes one definition. name is the file name and supplies the slug
// when the document has neither url nor slug.
func (l *Loader) Parse(name string, data []byte) (*Wheel, error) {
	decode := decodeYAML
	if filepath.Ext(name) == ".json" {
		decode = decodeJSON
	}
	f, err := decode(data)
	if err != nil {
		return nil, err
	}

	slug := f.URL
	if slug == "" {
		slug = f.Slug
	}
	if slug == "" {
		slug = slugFromFilename(name)
	}
	slug = NormalizeSlug(slug)
	if slug == "" {
		return nil, fmt.Errorf("cannot derive a slug from %q", name)
	}

	w := &Wheel{
		Slug:       slug,
		Title:      f.Title,
		Version:    NewVersion(slug),
		TicketOnly: f.TicketOnly,
	}
	if w.Title == "" {
		w.Title = strings.ToUpper(slug[:1]) + slug[1:]
	}

	switch {
	case len(f.Sequence) > 0:
		for i, e := range f.Sequence {
			if e.Label == "" {
				return nil, fmt.Errorf("sequence entry %d has no label", i)
			}
			w.Sectors = append(w.Sectors, e.sector(e.Label))
		}
	case len(f.Jackpots) > 0:
		sectors, err := expand(f.Jackpots)
		if err != nil {
			return nil, err
		}
		w.Sectors = sectors
		if l.balance && l.balancer != nil {
			w.Sectors, w.Violations = l.balancer.Balance(sectors)
			metrics.BalanceViolations.WithLabelValues(slug).Set(float64(w.Violations))
			if w.Violations > 0 {
				log.Warn().
					Str("wheel", slug).
					Int("violations", w.Violations).
					Int("sectors", len(w.Sectors)).
					Msg("Wheel balancing kept the best arrangement found; some neighbours still clash")
			}
		}
	}

	if len(w.Sectors) == 0 {
		return nil, ErrNoSectors
	}
	return w, nil
}

func decodeYAML(data []byte) (*definition, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("syntax error: %w", err)
	}
	d := &definition{URL: f.URL, Slug: f.Slug, Title: f.Title, TicketOnly: f.TicketOnly, Sequence: f.Sequence}
	if f.Jackpots.Kind != yaml.MappingNode {
		return d, nil
	}
	// Duplicate keys are rejected by yaml.v3 itself.
	for i := 0; i+1 < len(f.Jackpots.Content); i += 2 {
		label := f.Jackpots.Content[i].Value
		var e sectorEntry
		if err := f.Jackpots.Content[i+1].Decode(&e); err != nil {
			return nil, fmt.Errorf("jackpot %q: %w", label, err)
		}
		d.Jackpots = append(d.Jackpots, jackpot{label: label, entry: e})
	}
	return d, nil
}

func decodeJSON(data []byte) (*definition, error) {
	var f jsonFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("syntax error: %w", err)
	}
	d := &definition{URL: f.URL, Slug: f.Slug, Title: f.Title, TicketOnly: f.TicketOnly, Sequence: f.Sequence}
	raw := bytes.TrimSpace(f.Jackpots)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return d, nil
	}

	// Walk the object by hand: a map would lose document order. A repeated
	// label keeps its first position and takes the last value.
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, errors.New("jackpots must be an object")
	}
	seen := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("syntax error: %w", err)
		}
		label, _ := tok.(string)
		var e sectorEntry
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("jackpot %q: %w", label, err)
		}
		if i, dup := seen[label]; dup {
			d.Jackpots[i].entry = e
			continue
		}
		seen[label] = len(d.Jackpots)
		d.Jackpots = append(d.Jackpots, jackpot{label: label, entry: e})
	}
	return d, nil
}

// expand turns the weighted jackpots into a flat list, keeping document order.
func expand(jackpots []jackpot) ([]model.Sector, error) {
	var sectors []model.Sector
	for _, j := range jackpots {
		n := 1
		if j.entry.Number != nil {
			n = *j.entry.Number
		}
		if n < 1 {
			return nil, fmt.Errorf("jackpot %q: %w", j.label, ErrInvalidNumber)
		}
		s := j.entry.sector(j.label)
		for k := 0; k < n; k++ {
			sectors = append(sectors, s)
		}
	}
	return sectors, nil
}

// NormalizeSlug lower-cases a slug and replaces spaces with underscores.
func NormalizeSlug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}

// NewVersion returns a fresh version id of the form <slug>_<12 hex>.
func NewVersion(slug string) string {
	return slug + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func isDefinition(name string) bool {
	if !strings.HasPrefix(name, "jackpots_") {
		return false
	}
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func slugFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimPrefix(base, "jackpots_")
}
