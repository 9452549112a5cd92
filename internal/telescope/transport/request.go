package transport

import (
	"encoding/json"
	"fmt"
)

// ActionMethodSync is the envelope action that wraps most device methods.
const ActionMethodSync = "method_sync"

// Request is one device operation.
//
// For method_sync operations set Method and leave Action empty. For direct
// actions (goto_target) set Action and leave Method empty; Params then forms
// the whole Parameters object.
type Request struct {
	Action string
	Method string
	Params any
}

// Sync builds a method_sync request.
func Sync(method string, params any) Request {
	return Request{Action: ActionMethodSync, Method: method, Params: params}
}

// Endpoint identifies the device operation independent of its parameters,
// e.g. "method_sync/scope_get_equ_coord" or "goto_target".
func (r Request) Endpoint() string {
	action := r.action()
	if r.Method == "" {
		return action
	}
	return action + "/" + r.Method
}

// Key identifies the operation together with its parameters. Maps are
// encoded with sorted keys, so equal parameter sets produce equal keys.
func (r Request) Key() (string, error) {
	if r.Params == nil {
		return r.Endpoint(), nil
	}
	raw, err := json.Marshal(r.Params)
	if err != nil {
		return "", fmt.Errorf("encoding params for %s: %w", r.Endpoint(), err)
	}
	return r.Endpoint() + "?" + string(raw), nil
}

// Parameters returns the JSON text carried in the envelope's Parameters field.
func (r Request) Parameters() (string, error) {
	var body any
	if r.Method != "" {
		m := map[string]any{"method": r.Method}
		if r.Params != nil {
			m["params"] = r.Params
		}
		body = m
	} else if r.Params != nil {
		body = r.Params
	} else {
		body = map[string]any{}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding parameters for %s: %w", r.Endpoint(), err)
	}
	return string(raw), nil
}

func (r Request) action() string {
	if r.Action == "" {
		return ActionMethodSync
	}
	return r.Action
}

func (r Request) String() string {
	return r.Endpoint()
}
