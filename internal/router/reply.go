package router

import "errors"

// Reply is the uniform result of a command.
type Reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OK builds a success reply.
func OK(message string, data any) Reply {
	return Reply{OK: true, Message: message, Data: data}
}

// Fail builds a failure reply from err.
func Fail(err error) Reply {
	r := Reply{Error: err.Error()}
	var v *ValidationError
	if errors.As(err, &v) {
		r.Code = v.Code
	}
	return r
}
