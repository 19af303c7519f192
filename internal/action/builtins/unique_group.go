package builtins

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
	"lucky-wheel/internal/pkg/lock"
)

// uniqueGroupAction hands a campus group to exactly one local user at a time.
// The campus API is the source of truth for whether the recorded owner still
// holds the group; the local row only names who we last granted it to.
//
//	args: group_id (int)
type uniqueGroupAction struct {
	owners OwnershipStore
	locks  *lock.KeyedLock
}

func groupLockKey(groupID int64) string {
	return fmt.Sprintf("unique_group:%d", groupID)
}

func (a *uniqueGroupAction) execute(ctx context.Context, api action.API, user *model.User, args map[string]any) action.Outcome {
	if a.owners == nil {
		return action.Fail(action.KindConfiguration, "unique_group action is not wired to a store", nil)
	}
	if out, ok := requireLinked(user); !ok {
		return out
	}
	groupID, err := action.IntArg(args, "group_id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if groupID <= 0 {
		return action.Invalid("invalid or missing group id")
	}

	key := groupLockKey(groupID)
	if err := a.locks.LockContext(ctx, key); err != nil {
		return action.Fail(action.KindTransient, fmt.Sprintf("lock group %d: %v", groupID, err), nil)
	}
	defer a.locks.Unlock(key)

	current, err := a.owners.Get(ctx, groupID)
	if err != nil {
		return action.Fail(action.KindAction, fmt.Sprintf("load owner of group %d: %v", groupID, err), nil)
	}

	var previous *int64
	if current != nil {
		if current.OwnerUserID == user.TelegramID {
			return action.Ok("User already has the unique group", nil)
		}
		prev := current.OwnerUserID
		previous = &prev

		if out, ok := a.revokeFromOwner(ctx, api, current); !ok {
			return out
		}
	}

	res := api.Post(ctx, "/v2/groups_users", map[string]any{
		"groups_user": map[string]any{
			"group_id": groupID,
			"user_id":  user.IntraID,
		},
	})
	if !res.OK {
		return action.FailResult(res, fmt.Sprintf("grant group %d", groupID))
	}

	data := action.CloneData(res.Body)
	data["group_id"] = groupID
	if _, ok := data["group"].(map[string]any); !ok {
		data["group"] = map[string]any{"id": groupID}
	}

	if err := a.owners.Upsert(ctx, groupID, user.TelegramID, user.IntraID, previous); err != nil {
		// The grant happened; keep its data so it stays cancellable.
		log.Error().Err(err).
			Int64("group_id", groupID).
			Int64("user_id", user.TelegramID).
			Msg("Failed to record unique group owner after grant")
		data["ownership_warning"] = fmt.Sprintf("could not record ownership: %v", err)
	}

	return action.Ok(fmt.Sprintf("Unique group %d granted", groupID), data)
}

// revokeFromOwner removes the group from the recorded owner if the campus
// still shows them holding it. A revoke failure aborts the transfer.
func (a *uniqueGroupAction) revokeFromOwner(ctx context.Context, api action.API, current *model.UniqueOwnership) (action.Outcome, bool) {
	res := api.Get(ctx, fmt.Sprintf("/v2/users/%d/groups_users", current.OwnerIntraID))
	if !res.OK {
		return action.FailResult(res, "check current group owner"), false
	}

	recordID := findGroupsUser(res.Items(), current.GroupID, 0)
	if recordID == 0 {
		log.Info().
			Int64("group_id", current.GroupID).
			Int64("previous_owner", current.OwnerUserID).
			Msg("Previous owner no longer holds unique group, skipping revoke")
		return action.Outcome{}, true
	}

	del := api.Delete(ctx, fmt.Sprintf("/v2/groups_users/%d", recordID))
	if !del.OK {
		return action.FailResult(del, "remove group from current owner"), false
	}
	return action.Outcome{}, true
}

// compensate removes this grant. It does not give the group back to the previous owner.
func (a *uniqueGroupAction) compensate(ctx context.Context, api action.API, user *model.User, data map[string]any) action.Outcome {
	if a.owners == nil {
		return action.Fail(action.KindConfiguration, "unique_group action is not wired to a store", nil)
	}
	recordID, err := action.IntArg(data, "id", 0)
	if err != nil {
		return action.Invalid(err.Error())
	}
	if recordID <= 0 {
		return action.Invalid("invalid or missing groups_users id")
	}
	groupID, err := action.NestedIntArg(data, 0, "group", "id")
	if err != nil {
		return action.Invalid(err.Error())
	}
	if groupID <= 0 {
		if groupID, err = action.IntArg(data, "group_id", 0); err != nil || groupID <= 0 {
			return action.Invalid("invalid or missing group id")
		}
	}

	key := groupLockKey(groupID)
	if err := a.locks.LockContext(ctx, key); err != nil {
		return action.Fail(action.KindTransient, fmt.Sprintf("lock group %d: %v", groupID, err), nil)
	}
	defer a.locks.Unlock(key)

	res := api.Get(ctx, fmt.Sprintf("/v2/users/%d/groups_users", user.IntraID))
	if !res.OK {
		return action.FailResult(res, "check user's groups")
	}
	if findGroupsUser(res.Items(), groupID, recordID) == 0 {
		return action.Ok(fmt.Sprintf("User does not have the groups_users record %d", recordID), nil)
	}

	del := api.Delete(ctx, fmt.Sprintf("/v2/groups_users/%d", recordID))
	if !del.OK {
		return action.FailResult(del, fmt.Sprintf("remove groups_users %d", recordID))
	}

	out := action.CloneData(del.Body)
	removed, err := a.owners.DeleteIfOwner(ctx, groupID, user.TelegramID)
	if err != nil {
		out["cleanup_warning"] = fmt.Sprintf("could not clean ownership record: %v", err)
	} else {
		out["ownership_cleanup"] = removed
	}
	return action.Ok(fmt.Sprintf("Successfully removed group %d (groups_users %d) from user", groupID, recordID), out)
}

// findGroupsUser returns the id of the groups_users record for groupID, or 0.
// When recordID is non-zero only that record matches.
func findGroupsUser(items []map[string]any, groupID, recordID int64) int64 {
	for _, gu := range items {
		id, err := action.IntArg(gu, "id", 0)
		if err != nil || id <= 0 {
			continue
		}
		if recordID != 0 && id != recordID {
			continue
		}
		gid, err := action.IntArg(gu, "group_id", 0)
		if err != nil || gid == 0 {
			gid, err = action.NestedIntArg(gu, 0, "group", "id")
			if err != nil {
				continue
			}
		}
		if gid == groupID {
			return id
		}
	}
	return 0
}
