package errs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type CodeErrorI interface {
	ECode() int
	EMsg() string
	WithDetail(detail string) CodeError
	error
}

func NewCodeError(code int, msg string) CodeError {
	return CodeError{
		Code: code,
		Msg:  msg,
	}
}

type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e CodeError) ECode() int   { return e.Code }
func (e CodeError) EMsg() string { return e.Msg }

func (e CodeError) WithDetail(detail string) CodeError {
	var d string
	if e.Detail == "" {
		d = detail
	} else {
		d = e.Detail + ", " + detail
	}
	return CodeError{
		Code:   e.Code,
		Msg:    e.Msg,
		Detail: d,
	}
}

func (e CodeError) WrapMsg(msg string, kv ...any) error {
	out := e
	if msg != "" || len(kv) > 0 {
		detail := toString(msg, kv)
		if out.Detail == "" {
			out.Detail = detail
		} else {
			out.Detail += ", " + detail
		}
	}
	return out
}

func (e CodeError) Is(err error) bool {
	var codeErr CodeError
	if !errors.As(err, &codeErr) {
		return false
	}
	return e.Code == codeErr.Code
}

func (e CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)

	if e.Detail != "" {
		v = append(v, e.Detail)
	}

	return strings.Join(v, " ")
}

// Code extracts the wire code from any error; unknown errors map to ErrInternal's code.
func Code(err error) int {
	var codeErr CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return ErrInternal.Code
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i > 0 || msg != "" {
			sb.WriteString(" ")
		}
		sb.WriteString(anyToString(kv[i]))
		sb.WriteString("=")
		if i+1 < len(kv) {
			sb.WriteString(anyToString(kv[i+1]))
		}
	}
	return sb.String()
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
