package builtins

import (
	"context"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// defaultAction has no side effect.
func defaultAction(_ context.Context, _ action.API, _ *model.User, _ map[string]any) action.Outcome {
	return action.Ok("Default jackpot completed successfully", map[string]any{"message": "This is the default jackpot response"})
}

func cancelDefault(_ context.Context, _ action.API, _ *model.User, _ map[string]any) action.Outcome {
	return action.Ok("Default jackpot cancellation completed", nil)
}
