// Package mods holds campus-specific extension actions.
package mods

import (
	"context"
	"fmt"
	"strings"

	"lucky-wheel/internal/action"
	"lucky-wheel/internal/model"
)

// Register installs the extension actions. hook posts to the campus
// infrastructure webhook and may be nil when no webhook is configured.
func Register(r *action.Registry, hook action.API, hash string) error {
	n := &notifier{hook: hook, hash: hash}
	if err := r.Register(action.NamespaceMods, "notify", n.execute, n.compensate); err != nil {
		return fmt.Errorf("register mods.notify: %w", err)
	}
	return nil
}

// notifier announces special prizes in the campus chat channel.
//
//	args: text (template: {login})
type notifier struct {
	hook action.API
	hash string
}

func (n *notifier) post(ctx context.Context, text string) action.Outcome {
	res := n.hook.Post(ctx, "", map[string]any{
		"type":   "ft_wheel",
		"action": "notification",
		"text":   text,
		"hash":   n.hash,
	})
	if !res.OK {
		return action.FailResult(res, "post infra notification")
	}
	return action.Ok("Notification sent", nil)
}

func (n *notifier) execute(ctx context.Context, _ action.API, user *model.User, args map[string]any) action.Outcome {
	if n.hook == nil {
		return action.Fail(action.KindConfiguration, "infra webhook is not configured", nil)
	}
	prize := strings.TrimSpace(action.Expand(action.StringArg(args, "text", ""), map[string]string{"login": user.Login}))
	if prize == "" {
		return action.Invalid("missing text")
	}

	out := n.post(ctx, fmt.Sprintf("---\n%s won %s\n---", displayName(user), prize))
	if !out.Success() {
		return out
	}
	return action.Ok(out.Message, map[string]any{"text": prize, "login": user.Login})
}

// compensate announces that the prize was withdrawn.
func (n *notifier) compensate(ctx context.Context, _ action.API, user *model.User, data map[string]any) action.Outcome {
	if n.hook == nil {
		return action.Fail(action.KindConfiguration, "infra webhook is not configured", nil)
	}
	prize := action.StringArg(data, "text", "")
	if prize == "" {
		return action.Invalid("missing recorded text")
	}
	login := action.StringArg(data, "login", displayName(user))

	out := n.post(ctx, fmt.Sprintf("---\n%s no longer wins %s\n---", login, prize))
	if !out.Success() {
		return out
	}
	return action.Ok("Retraction sent", map[string]any{"text": prize})
}

func displayName(user *model.User) string {
	if user.Login != "" {
		return user.Login
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return fmt.Sprintf("user %d", user.TelegramID)
}
