package intra

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// Failure classes carried by Result.Err.
var (
	// ErrClient marks a 4xx answer other than 401 and 429. It is never retried.
	ErrClient = errors.New("campus api client error")
	// ErrTransient marks 5xx answers, throttling, auth churn and transport failures that outlived the attempt budget.
	ErrTransient = errors.New("campus api transient error")
)

// Result is the outcome of one logical request. Body is never nil.
type Result struct {
	OK      bool
	Err     error
	Status  int
	Message string
	Body    map[string]any
}

func success(status int, body map[string]any) Result {
	return Result{
		OK:      true,
		Status:  status,
		Message: fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Body:    body,
	}
}

func failure(class error, status int, msg string, body map[string]any) Result {
	if body == nil {
		body = map[string]any{}
	}
	return Result{Err: class, Status: status, Message: msg, Body: body}
}

// IsClientError reports whether the request failed with a non-retryable client error.
func (r Result) IsClientError() bool {
	return errors.Is(r.Err, ErrClient)
}

// Items returns the object entries of a list response.
// A single object body is returned as a one-element list.
func (r Result) Items() []map[string]any {
	raw, ok := r.Body["items"].([]any)
	if !ok {
		if len(r.Body) == 0 {
			return nil
		}
		if _, wrapped := r.Body["value"]; wrapped && len(r.Body) == 1 {
			return nil
		}
		if _, wrapped := r.Body["raw"]; wrapped && len(r.Body) == 1 {
			return nil
		}
		return []map[string]any{r.Body}
	}
	items := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if m, ok := it.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items
}

// parseBody turns a response payload into a mapping.
// JSON objects are used as-is, arrays land under "items", scalars under "value"
// and anything that is not JSON under "raw".
func parseBody(contentType string, raw []byte) map[string]any {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return map[string]any{}
	}
	if !isJSON(contentType) {
		return map[string]any{"raw": text}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{"raw": text}
	}
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		return map[string]any{"items": t}
	case nil:
		return map[string]any{}
	default:
		return map[string]any{"value": t}
	}
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
