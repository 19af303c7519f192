package builtins

import (
	"context"
	"fmt"
	"strconv"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// wallets credits (or debits) the user's wallet.
//
//	args: amount (int, non-zero), reason (template: {login}, {amount})
func wallets(ctx context.Context, api action.API, user *model.User, args map[string]any) action.Outcome {
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

	res := api.Post(ctx, "/v2/transactions", map[string]any{
		"transaction": map[string]any{
			"value":             amount,
			"user_id":           user.IntraID,
			"transactable_type": "ft_wheel",
			"reason":            reason,
		},
	})
	if !res.OK {
		return action.FailResult(res, "create transaction")
	}
	return action.Ok(fmt.Sprintf("%d wallets credited", amount), res.Body)
}

func cancelWallets(ctx context.Context, api action.API, _ *model.User, data map[string]any) action.Outcome {
	id, err := action.IntArg(data, "id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if id <= 0 {
		return action.Invalid("invalid or missing transaction id")
	}

	res := api.Delete(ctx, fmt.Sprintf("/v2/transactions/%d", id))
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("delete transaction %d", id))
	}
	return action.Ok(fmt.Sprintf("Transaction %d deleted", id), res.Body)
}
