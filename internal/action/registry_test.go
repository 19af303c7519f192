package action

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lucky-wheel/internal/model"
)

func noop(_ context.Context, _ API, _ *model.User, _ map[string]any) Outcome {
	return Ok("noop", nil)
}

func TestRegisterRequiresBothHalves(t *testing.T) {
	r := NewRegistry()

	err := r.Register(NamespaceBuiltins, "points", noop, nil)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "compensate")

	err = r.Register(NamespaceBuiltins, "points", nil, noop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute")

	assert.Equal(t, 0, r.Count())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NamespaceMods, "notify", noop, noop))

	err := r.Register(NamespaceMods, "notify", noop, noop)
	assert.True(t, IsConfigurationError(err))
}

func TestMustRegisterPanics(t *testing.T) {
	r := NewRegistry()
	assert.Panics(t, func() { r.MustRegister("plugins", "x", noop, noop) })
}

func TestResolve(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NamespaceBuiltins, "default", noop, noop)
	r.MustRegister(NamespaceMods, "notify", noop, noop)

	tests := []struct {
		name    string
		ref     string
		wantErr string
	}{
		{"builtin", "builtins.default", ""},
		{"extension", "mods.notify", ""},
		{"no dot", "default", "expected <namespace>.<name>"},
		{"empty name", "builtins.", "expected <namespace>.<name>"},
		{"nested", "builtins.a.b", "expected <namespace>.<name>"},
		{"unknown namespace", "plugins.default", "unknown namespace"},
		{"unknown action", "builtins.jackpot", "no such action"},
		{"empty", "", "expected <namespace>.<name>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Resolve(tt.ref)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.NotNil(t, p.Execute)
				assert.NotNil(t, p.Compensate)
				return
			}
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateRefs(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NamespaceBuiltins, "default", noop, noop)

	assert.NoError(t, r.ValidateRefs([]string{"builtins.default", "builtins.default"}))

	err := r.ValidateRefs([]string{"builtins.default", "builtins.nope", "x.y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "builtins.nope")
	assert.Contains(t, err.Error(), "x.y")
}

func TestRefsSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NamespaceMods, "notify", noop, noop)
	r.MustRegister(NamespaceBuiltins, "title", noop, noop)
	r.MustRegister(NamespaceBuiltins, "default", noop, noop)

	assert.Equal(t, []string{"builtins.default", "builtins.title", "mods.notify"}, r.Refs())
}
