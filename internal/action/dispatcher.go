package action

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/model"
	"lucky-wheel/internal/pkg/metrics"
)

const (
	phaseExecute    = "execute"
	phaseCompensate = "compensate"
)

// Dispatcher resolves sector functions and runs them against the campus API.
// It never returns an error or lets a panic escape; every failure is an Outcome.
type Dispatcher struct {
	registry *Registry
	api      API
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(registry *Registry, api API) *Dispatcher {
	return &Dispatcher{registry: registry, api: api}
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Run executes the sector's action for user.
func (d *Dispatcher) Run(ctx context.Context, user *model.User, sector *model.Sector) Outcome {
	if user == nil {
		return d.reject(phaseExecute, "", "no user")
	}
	if sector == nil {
		return d.reject(phaseExecute, "", "no sector")
	}
	if sector.Function == "" {
		return d.reject(phaseExecute, "", fmt.Sprintf("sector %q has no function", sector.Label))
	}

	pair, err := d.registry.Resolve(sector.Function)
	if err != nil {
		return d.finish(phaseExecute, sector.Function, user, Fail(KindConfiguration, err.Error(), nil))
	}

	args := sector.Args
	if args == nil {
		args = map[string]any{}
	}
	return d.finish(phaseExecute, sector.Function, user, d.invoke(ctx, pair.Execute, user, args))
}

// Cancel compensates a previously executed action using the data it recorded.
func (d *Dispatcher) Cancel(ctx context.Context, user *model.User, ref string, data map[string]any) Outcome {
	if user == nil {
		return d.reject(phaseCompensate, ref, "no user")
	}
	if ref == "" {
		return d.reject(phaseCompensate, ref, "no function")
	}

	pair, err := d.registry.Resolve(ref)
	if err != nil {
		return d.finish(phaseCompensate, ref, user, Fail(KindConfiguration, err.Error(), nil))
	}

	if data == nil {
		data = map[string]any{}
	}
	return d.finish(phaseCompensate, ref, user, d.invoke(ctx, pair.Compensate, user, data))
}

func (d *Dispatcher) invoke(ctx context.Context, fn Func, user *model.User, args map[string]any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Action panicked")
			out = Fail(KindAction, fmt.Sprintf("action panicked: %v", r), nil)
		}
	}()
	return fn(ctx, d.api, user, args)
}

func (d *Dispatcher) reject(phase, ref, reason string) Outcome {
	out := Invalid(reason)
	metrics.Actions.WithLabelValues(ref, phase, string(KindInvalid)).Inc()
	log.Error().Str("phase", phase).Str("function", ref).Str("result", reason).Msg("Action rejected")
	return out
}

func (d *Dispatcher) finish(phase, ref string, user *model.User, out Outcome) Outcome {
	if out.Data == nil {
		out.Data = map[string]any{}
	}

	result := "ok"
	if !out.Success() {
		result = string(out.Kind)
	}
	metrics.Actions.WithLabelValues(ref, phase, result).Inc()

	ev := log.Info()
	msg := "Action completed"
	if !out.Success() {
		ev = log.Error().Str("kind", string(out.Kind))
		msg = "Action failed"
	}
	ev.Str("phase", phase).
		Str("function", ref).
		Int64("user_id", user.TelegramID).
		Str("login", user.Login).
		Str("result", out.Message).
		Interface("data", out.Data).
		Msg(msg)

	return out
}
