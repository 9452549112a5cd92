package transport

import (
	"encoding/json"
	"net/http"
)

// Response is what the device sent back for one exchange.
//
// StatusCode is the HTTP status. ErrorNumber and ErrorMessage are the
// Alpaca-level error fields. Value is the raw Alpaca Value, which for
// method_sync calls wraps a JSON-RPC style object with "result", "code" and
// "error" members.
type Response struct {
	StatusCode   int
	Value        json.RawMessage
	ErrorNumber  int
	ErrorMessage string
}

// envelope is the Alpaca response body.
type envelope struct {
	Value               json.RawMessage `json:"Value"`
	ErrorNumber         int             `json:"ErrorNumber"`
	ErrorMessage        string          `json:"ErrorMessage"`
	ClientTransactionID uint64          `json:"ClientTransactionID"`
	ServerTransactionID uint64          `json:"ServerTransactionID"`
}

// rpcValue is the method_sync payload nested inside Value.
type rpcValue struct {
	Result json.RawMessage `json:"result"`
	Code   int             `json:"code"`
	Error  string          `json:"error"`
}

// OK reports whether the HTTP exchange itself succeeded (2xx).
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Result returns Value.result when Value is a method_sync object, or Value
// itself otherwise.
func (r *Response) Result() json.RawMessage {
	var v rpcValue
	if len(r.Value) == 0 || r.Value[0] != '{' {
		return r.Value
	}
	if err := json.Unmarshal(r.Value, &v); err != nil || v.Result == nil {
		return r.Value
	}
	return v.Result
}

// DeviceError returns the error reported inside the body, if any.
// Alpaca-level errors take precedence over method_sync errors.
func (r *Response) DeviceError() (code int, message string) {
	if r.ErrorNumber != 0 || r.ErrorMessage != "" {
		return r.ErrorNumber, r.ErrorMessage
	}
	if len(r.Value) == 0 || r.Value[0] != '{' {
		return 0, ""
	}
	var v rpcValue
	if err := json.Unmarshal(r.Value, &v); err != nil {
		return 0, ""
	}
	return v.Code, v.Error
}
