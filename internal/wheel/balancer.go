package wheel

import (
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	"lucky-wheel/internal/model"
)

// Balancer orders sectors so that neighbours differ in label and visibly in color.
// It shuffles up to Attempts times, falls back to a greedy arrangement and keeps
// whichever candidate has the fewest violations.
type Balancer struct {
	attempts  int
	threshold float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBalancer creates a Balancer. A nil rng uses a time-seeded source.
func NewBalancer(attempts int, threshold float64, rng *rand.Rand) *Balancer {
	if attempts < 1 {
		attempts = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Balancer{attempts: attempts, threshold: threshold, rng: rng}
}

// Balance returns a reordering of sectors and the number of adjacent violations it still has.
// The output is always a permutation of the input.
func (b *Balancer) Balance(sectors []model.Sector) ([]model.Sector, int) {
	if len(sectors) < 2 {
		return append([]model.Sector(nil), sectors...), 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var best []model.Sector
	bestV := math.MaxInt

	cand := append([]model.Sector(nil), sectors...)
	for i := 0; i < b.attempts; i++ {
		b.rng.Shuffle(len(cand), func(i, j int) { cand[i], cand[j] = cand[j], cand[i] })
		if v := Violations(cand, b.threshold); v < bestV {
			best = append(best[:0], cand...)
			bestV = v
			if v == 0 {
				return best, 0
			}
		}
	}

	greedy := b.greedy(sectors)
	if v := Violations(greedy, b.threshold); v < bestV {
		best, bestV = greedy, v
	}
	return best, bestV
}

// greedy places, at each step, a sector from the label with the most copies
// left that does not clash with the previous one. Ties are broken at random.
func (b *Balancer) greedy(sectors []model.Sector) []model.Sector {
	type group struct {
		label   string
		pending []model.Sector
	}

	var groups []*group
	byLabel := make(map[string]*group)
	for _, s := range sectors {
		g, ok := byLabel[s.Label]
		if !ok {
			g = &group{label: s.Label}
			byLabel[s.Label] = g
			groups = append(groups, g)
		}
		g.pending = append(g.pending, s)
	}

	out := make([]model.Sector, 0, len(sectors))
	var prev *model.Sector

	pick := func(ok func(*group) bool) *group {
		var chosen *group
		ties := 0
		for _, g := range groups {
			if len(g.pending) == 0 || !ok(g) {
				continue
			}
			switch {
			case chosen == nil || len(g.pending) > len(chosen.pending):
				chosen, ties = g, 1
			case len(g.pending) == len(chosen.pending):
				ties++
				if b.rng.Intn(ties) == 0 {
					chosen = g
				}
			}
		}
		return chosen
	}

	for len(out) < len(sectors) {
		g := pick(func(g *group) bool {
			return prev == nil || (g.label != prev.Label && !SimilarColors(g.pending[0].Color, prev.Color, b.threshold))
		})
		if g == nil {
			g = pick(func(g *group) bool { return prev == nil || g.label != prev.Label })
		}
		if g == nil {
			g = pick(func(*group) bool { return true })
		}

		s := g.pending[0]
		g.pending = g.pending[1:]
		out = append(out, s)
		prev = &out[len(out)-1]
	}
	return out
}

// Violations counts adjacent pairs sharing a label or a similar color.
// The sequence is treated as linear: the last sector is not compared with the first.
func Violations(seq []model.Sector, threshold float64) int {
	n := 0
	for i := 0; i+1 < len(seq); i++ {
		if seq[i].Label == seq[i+1].Label || SimilarColors(seq[i].Color, seq[i+1].Color, threshold) {
			n++
		}
	}
	return n
}

// SimilarColors reports whether two hex colors are closer than threshold in RGB space.
// Colors that cannot be parsed are never similar.
func SimilarColors(a, b string, threshold float64) bool {
	ra, ga, ba, ok := parseHex(a)
	if !ok {
		return false
	}
	rb, gb, bb, ok := parseHex(b)
	if !ok {
		return false
	}
	dr, dg, db := float64(ra-rb), float64(ga-gb), float64(ba-bb)
	return math.Sqrt(dr*dr+dg*dg+db*db) < threshold
}

func parseHex(c string) (r, g, b int, ok bool) {
	c = strings.TrimPrefix(strings.TrimSpace(c), "#")
	if len(c) == 3 {
		c = string([]byte{c[0], c[0], c[1], c[1], c[2], c[2]})
	}
	if len(c) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(c, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return int(v >> 16 & 0xFF), int(v >> 8 & 0xFF), int(v & 0xFF), true
}
