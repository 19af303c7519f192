package wheel

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"lucky-wheel/internal/model"
)

func sector(label, color string) model.Sector {
	return model.Sector{Label: label, Color: color, Function: DefaultFunction, Args: map[string]any{}}
}

func multiset(seq []model.Sector) []string {
	keys := make([]string, len(seq))
	for i, s := range seq {
		keys[i] = s.Label + "|" + s.Color
	}
	sort.Strings(keys)
	return keys
}

// TestBalancePreservesMultisetProperty checks that balancing only reorders:
// no sector is lost or duplicated.
func TestBalancePreservesMultisetProperty(t *testing.T) {
	palette := []string{"#FF0000", "#00FF00", "#0000FF", "#FFFF00", "#FF00FF", "#00FFFF", "#FFFFFF", "#101010", "not-a-color"}

	rapid.Check(t, func(t *rapid.T) {
		labels := rapid.IntRange(1, 6).Draw(t, "labels")
		var in []model.Sector
		for i := 0; i < labels; i++ {
			color := rapid.SampledFrom(palette).Draw(t, "color")
			count := rapid.IntRange(1, 8).Draw(t, "count")
			for j := 0; j < count; j++ {
				in = append(in, sector(fmt.Sprintf("L%d", i), color))
			}
		}
		seed := rapid.Int64().Draw(t, "seed")
		b := NewBalancer(20, 100, rand.New(rand.NewSource(seed)))

		out, violations := b.Balance(in)

		if len(out) != len(in) {
			t.Fatalf("length changed: %d -> %d", len(in), len(out))
		}
		want, got := multiset(in), multiset(out)
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("multiset changed at %d: %s vs %s", i, want[i], got[i])
			}
		}
		if violations != Violations(out, 100) {
			t.Fatalf("reported %d violations, found %d", violations, Violations(out, 100))
		}
	})
}

func TestBalanceNeverPlacesRepeatedLabelSideBySide(t *testing.T) {
	in := []model.Sector{
		sector("A", "#FF0000"),
		sector("A", "#FF0000"),
		sector("B", "#00FF00"),
	}
	b := NewBalancer(20, 100, rand.New(rand.NewSource(1)))

	for run := 0; run < 1000; run++ {
		out, violations := b.Balance(in)
		require.Len(t, out, 3)
		require.Zero(t, violations, "run %d", run)
		for i := 0; i+1 < len(out); i++ {
			require.False(t, out[i].Label == "A" && out[i+1].Label == "A", "run %d: %v", run, out)
		}
	}
}

func TestBalanceFallsBackToGreedy(t *testing.T) {
	// Seven of one label and six of another admit exactly one clean layout.
	var in []model.Sector
	for i := 0; i < 7; i++ {
		in = append(in, sector("A", "#FF0000"))
	}
	for i := 0; i < 6; i++ {
		in = append(in, sector("B", "#0000FF"))
	}
	b := NewBalancer(1, 100, rand.New(rand.NewSource(42)))

	out, violations := b.Balance(in)

	assert.Zero(t, violations)
	assert.Equal(t, "A", out[0].Label)
	assert.Equal(t, "A", out[len(out)-1].Label)
}

func TestBalanceKeepsBestWhenImpossible(t *testing.T) {
	in := []model.Sector{sector("A", "#FF0000"), sector("A", "#FF0000"), sector("A", "#FF0000")}
	b := NewBalancer(5, 100, rand.New(rand.NewSource(3)))

	out, violations := b.Balance(in)

	assert.Len(t, out, 3)
	assert.Equal(t, 2, violations)
}

func TestBalanceTrivialInputs(t *testing.T) {
	b := NewBalancer(20, 100, nil)

	out, v := b.Balance(nil)
	assert.Empty(t, out)
	assert.Zero(t, v)

	one := []model.Sector{sector("A", "#000000")}
	out, v = b.Balance(one)
	assert.Equal(t, one, out)
	assert.Zero(t, v)
}

func TestSimilarColors(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"#FF0000", "#FF0000", true},
		{"#FF0000", "#F00", true},
		{"#FF0000", "#EE1010", true},
		{"#FF0000", "#00FF00", false},
		{"#000000", "#393939", true},
		{"#000000", "#3A3A3A", false},
		{"#000000", "#404040", false},
		{"#FFFFFF", "nope", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, SimilarColors(tt.a, tt.b, 100))
		})
	}
}

func TestViolationsIsLinear(t *testing.T) {
	seq := []model.Sector{sector("A", "#FF0000"), sector("B", "#0000FF"), sector("A", "#FF0000")}
	assert.Zero(t, Violations(seq, 100), "first and last are not neighbours")

	seq = append(seq, sector("A", "#FF0000"))
	assert.Equal(t, 1, Violations(seq, 100))
}
