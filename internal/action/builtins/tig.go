package builtins

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// tigDurations maps the allowed community service lengths to seconds.
var tigDurations = map[string]int64{
	"2h": 7200,
	"4h": 14400,
	"8h": 28800,
}

// tig opens a close with a community service for the user.
//
//	args: duration (2h|4h|8h), reason (template: {login}, {duration}), occupation
func tig(ctx context.Context, api action.API, user *model.User, args map[string]any) action.Outcome {
	if out, ok := requireLinked(user); !ok {
		return out
	}
	duration := action.StringArg(args, "duration", "2h")
	seconds, ok := tigDurations[duration]
	if !ok {
		return action.Invalid("duration must be one of 2h, 4h, 8h")
	}
	reason := action.Expand(action.StringArg(args, "reason", "No reason provided"),
		templateVars(user, map[string]string{"duration": duration}))
	occupation := action.StringArg(args, "occupation", "undefined")
	secs := strconv.FormatInt(seconds, 10)

	res := api.Post(ctx, fmt.Sprintf("/v2/users/%d/closes", user.IntraID), map[string]any{
		"close": map[string]any{
			"user_id":   user.IntraID,
			"closer_id": user.IntraID,
			"kind":      "other",
			"reason":    "ft_wheel - " + reason,
			"community_services_attributes": []map[string]any{
				{"duration": secs},
			},
		},
	})
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("create close for user %d", user.IntraID))
	}
	closeID, err := action.IntArg(res.Body, "id", 0)
	if err != nil || closeID <= 0 {
		return action.Fail(action.KindAction, "invalid close id received", res.Body)
	}

	res = api.Post(ctx, "/v2/community_services", map[string]any{
		"community_service": map[string]any{
			"close_id":   closeID,
			"duration":   secs,
			"occupation": occupation,
			"tiger_id":   user.IntraID,
		},
	})
	if !res.OK {
		// Do not leave an orphan close behind.
		rollback := api.Delete(ctx, fmt.Sprintf("/v2/closes/%d", closeID))
		if !rollback.OK {
			log.Error().
				Int64("close_id", closeID).
				Str("result", rollback.Message).
				Msg("Failed to delete close after community service failure")
		}
		out := action.FailResult(res, "create community service")
		out.Data["close_id"] = closeID
		out.Data["close_deleted"] = rollback.OK
		return out
	}

	data := action.CloneData(res.Body)
	closeData, _ := data["close"].(map[string]any)
	if closeData == nil {
		closeData = map[string]any{}
	} else {
		closeData = action.CloneData(closeData)
	}
	if _, ok := closeData["id"]; !ok {
		closeData["id"] = closeID
	}
	data["close"] = closeData
	return action.Ok(fmt.Sprintf("TIG of %s scheduled", duration), data)
}

// cancelTIG deletes the community service, then its close.
func cancelTIG(ctx context.Context, api action.API, _ *model.User, data map[string]any) action.Outcome {
	serviceID, err := action.IntArg(data, "id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if serviceID <= 0 {
		return action.Invalid("invalid or missing community service id")
	}
	closeID, err := action.NestedIntArg(data, 0, "close", "id")
	if err != nil {
		return action.Invalid(err.Error())
	}
	if closeID <= 0 {
		return action.Invalid("invalid or missing close id")
	}

	cs := api.Delete(ctx, fmt.Sprintf("/v2/community_services/%d", serviceID))
	if !cs.OK {
		return action.FailResult(cs, fmt.Sprintf("delete community service %d", serviceID))
	}
	cl := api.Delete(ctx, fmt.Sprintf("/v2/closes/%d", closeID))
	if !cl.OK {
		return action.FailResult(cl, fmt.Sprintf("delete close %d", closeID))
	}
	return action.Ok("Successfully cancelled TIG", map[string]any{"cs": cs.Body, "cl": cl.Body})
}
