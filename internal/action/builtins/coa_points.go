package builtins

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// coaPoints adds (or removes, when negative) points to the user's first coalition.
//
//	args: amount (int, non-zero), reason (template: {login}, {amount})
func coaPoints(ctx context.Context, api action.API, user *model.User, args map[string]any) action.Outcome {
	if out, ok := requireLinked(user); !ok {
		return out
	}
	amount, err := action.IntArg(args, "amount", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if amount == 0 {
		return action.Invalid("amount cannot be zero")
	}
	reason := action.Expand(action.StringArg(args, "reason", "No reason provided"),
		templateVars(user, map[string]string{"amount": strconv.FormatInt(amount, 10)}))

	res := api.Get(ctx, fmt.Sprintf("/v2/users/%s/coalitions", url.PathEscape(user.Login)))
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("fetch coalitions of %s", user.Login))
	}
	coalitions := res.Items()
	if len(coalitions) == 0 {
		return action.Fail(action.KindAction, fmt.Sprintf("user %s has no coalition", user.Login), res.Body)
	}
	coaID, err := action.IntArg(coalitions[0], "id", 0)
	if err != nil || coaID <= 0 {
		return action.Fail(action.KindAction, fmt.Sprintf("coalition id not found for %s", user.Login), res.Body)
	}

	res = api.Post(ctx, fmt.Sprintf("/v2/coalitions/%d/scores", coaID), map[string]any{
		"score": map[string]any{
			"value":  amount,
			"reason": reason,
		},
	})
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("add score to coalition %d", coaID))
	}

	data := action.CloneData(res.Body)
	if _, ok := data["coalition_id"]; !ok {
		data["coalition_id"] = coaID
	}
	return action.Ok(fmt.Sprintf("%d coalition points recorded", amount), data)
}

// cancelCoaPoints deletes the recorded score.
func cancelCoaPoints(ctx context.Context, api action.API, _ *model.User, data map[string]any) action.Outcome {
	scoreID, err := action.IntArg(data, "id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	coaID, err := action.IntArg(data, "coalition_id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if scoreID <= 0 || coaID <= 0 {
		return action.Invalid("missing score id or coalition_id")
	}

	res := api.Delete(ctx, fmt.Sprintf("/v2/coalitions/%d/scores/%d", coaID, scoreID))
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("delete score %d", scoreID))
	}
	return action.Ok(fmt.Sprintf("Score %d removed from coalition %d", scoreID, coaID), res.Body)
}
