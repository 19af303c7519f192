package builtins

import (
	"context"
	"fmt"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// title attaches an existing title to the user.
//
//	args: title_id (int)
func title(ctx context.Context, api action.API, user *model.User, args map[string]any) action.Outcome {
	if out, ok := requireLinked(user); !ok {
		return out
	}
	titleID, err := action.IntArg(args, "title_id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if titleID <= 0 {
		return action.Invalid("invalid or missing title id")
	}

	res := api.Post(ctx, "/v2/titles_users", map[string]any{
		"titles_user": map[string]any{
			"title_id": titleID,
			"user_id":  user.IntraID,
		},
	})
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("grant title %d", titleID))
	}
	return action.Ok(fmt.Sprintf("Title %d granted", titleID), res.Body)
}

func cancelTitle(ctx context.Context, api action.API, _ *model.User, data map[string]any) action.Outcome {
	id, err := action.IntArg(data, "id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if id <= 0 {
		return action.Invalid("invalid or missing titles_user id")
	}

	res := api.Delete(ctx, fmt.Sprintf("/v2/titles_users/%d", id))
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("delete titles_user %d", id))
	}
	return action.Ok(fmt.Sprintf("Titles_user %d deleted", id), res.Body)
}
