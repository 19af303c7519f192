// Package action maps declarative sector function references to paired
// execute/compensate functions and runs them.
// Adding a reward kind only requires registering a Pair under a namespace.
package action

import (
	"context"

	"lucky-wheel/internal/intra"
	"lucky-wheel/internal/model"
)

// Recognised function namespaces.
const (
	NamespaceBuiltins = "builtins"
	NamespaceMods     = "mods"
)

// API is the campus API surface actions call into.
type API interface {
	Do(ctx context.Context, method, path string, headers map[string]string, body any) intra.Result
	Get(ctx context.Context, path string) intra.Result
	Post(ctx context.Context, path string, body any) intra.Result
	Delete(ctx context.Context, path string) intra.Result
}

// Func is one half of an action.
// On execute, args are the sector args; on compensate, args are the data the
// execute call recorded.
type Func func(ctx context.Context, api API, user *model.User, args map[string]any) Outcome

// Pair couples an action with its reversal.
type Pair struct {
	Execute    Func
	Compensate Func
}
