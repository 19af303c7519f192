// Package actiontest provides an in-memory campus API for action tests.
package actiontest

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"lucky-wheel/internal/intra"
)

// Call is one request seen by FakeAPI.
type Call struct {
	Method string
	Path   string
	Body   any
}

// Handler answers one route.
type Handler func(body any) intra.Result

// FakeAPI routes requests by "METHOD path" and records every call.
// Unrouted requests get a 404 client error.
type FakeAPI struct {
	mu     sync.Mutex
	routes map[string]Handler
	calls  []Call
}

// NewFakeAPI creates an empty FakeAPI.
func NewFakeAPI() *FakeAPI {
	return &FakeAPI{routes: make(map[string]Handler)}
}

// Handle installs a handler for method and path.
func (f *FakeAPI) Handle(method, path string, h Handler) *FakeAPI {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = h
	return f
}

// Reply installs a fixed successful JSON object response.
func (f *FakeAPI) Reply(method, path string, body map[string]any) *FakeAPI {
	return f.Handle(method, path, func(any) intra.Result { return OK(body) })
}

// ReplyList installs a fixed successful JSON array response.
func (f *FakeAPI) ReplyList(method, path string, items ...map[string]any) *FakeAPI {
	return f.Handle(method, path, func(any) intra.Result { return OKList(items...) })
}

// Fail installs a fixed failure.
func (f *FakeAPI) Fail(method, path string, status int) *FakeAPI {
	return f.Handle(method, path, func(any) intra.Result { return Failure(status) })
}

// Do implements action.API.
func (f *FakeAPI) Do(_ context.Context, method, path string, _ map[string]string, body any) intra.Result {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: method, Path: path, Body: body})
	h, ok := f.routes[method+" "+path]
	f.mu.Unlock()

	if !ok {
		return Failure(http.StatusNotFound)
	}
	return h(body)
}

// Get implements action.API.
func (f *FakeAPI) Get(ctx context.Context, path string) intra.Result {
	return f.Do(ctx, http.MethodGet, path, nil, nil)
}

// Post implements action.API.
func (f *FakeAPI) Post(ctx context.Context, path string, body any) intra.Result {
	return f.Do(ctx, http.MethodPost, path, nil, body)
}

// Delete implements action.API.
func (f *FakeAPI) Delete(ctx context.Context, path string) intra.Result {
	return f.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Calls returns a copy of the recorded calls.
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo counts calls to method and path.
func (f *FakeAPI) CallsTo(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// OK is a successful result carrying body.
func OK(body map[string]any) intra.Result {
	if body == nil {
		body = map[string]any{}
	}
	return intra.Result{OK: true, Status: http.StatusOK, Message: "200 OK", Body: body}
}

// OKList is a successful result for a JSON array.
func OKList(items ...map[string]any) intra.Result {
	list := make([]any, 0, len(items))
	for _, it := range items {
		list = append(list, it)
	}
	return OK(map[string]any{"items": list})
}

// Failure is a failed result classified by status.
func Failure(status int) intra.Result {
	class := intra.ErrTransient
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusUnauthorized {
		class = intra.ErrClient
	}
	return intra.Result{
		Err:     class,
		Status:  status,
		Message: fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Body:    map[string]any{"error": http.StatusText(status)},
	}
}
