package action

import (
	"errors"

	"lucky-wheel/internal/intra"
)

// Kind classifies an Outcome. The zero Kind means success.
type Kind string

// Outcome kinds.
const (
	KindOK            Kind = ""
	KindConfiguration Kind = "configuration" // bad function reference or missing pair
	KindClient        Kind = "client"        // campus API rejected the request
	KindTransient     Kind = "transient"     // campus API unreachable after retries
	KindAction        Kind = "action"        // the action itself failed or panicked
	KindInvalid       Kind = "invalid"       // missing user, sector or arguments
)

// Outcome is the tagged result of running or compensating an action.
// Data is what compensation needs later and is never nil.
type Outcome struct {
	Kind    Kind
	Message string
	Data    map[string]any
}

// Ok builds a successful outcome.
func Ok(message string, data map[string]any) Outcome {
	if data == nil {
		data = map[string]any{}
	}
	return Outcome{Kind: KindOK, Message: message, Data: data}
}

// Fail builds a failed outcome.
func Fail(kind Kind, message string, data map[string]any) Outcome {
	if kind == KindOK {
		kind = KindAction
	}
	if data == nil {
		data = map[string]any{}
	}
	return Outcome{Kind: kind, Message: message, Data: data}
}

// Invalid builds a failed outcome for bad input.
func Invalid(message string) Outcome {
	return Fail(KindInvalid, message, nil)
}

// Success reports whether the outcome is Ok.
func (o Outcome) Success() bool {
	return o.Kind == KindOK
}

// FromResult converts a campus API result, keeping its body as data.
func FromResult(r intra.Result) Outcome {
	if r.OK {
		return Ok(r.Message, r.Body)
	}
	return Fail(kindOf(r.Err), r.Message, r.Body)
}

// FailResult converts a failed API result with a caller-supplied message.
func FailResult(r intra.Result, message string) Outcome {
	return Fail(kindOf(r.Err), message+": "+r.Message, r.Body)
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, intra.ErrClient):
		return KindClient
	case errors.Is(err, intra.ErrTransient):
		return KindTransient
	default:
		return KindAction
	}
}
