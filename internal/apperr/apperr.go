package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别，一次运行中任何一类错误都会终止本轮
type Kind string

const (
	NetworkFailure  Kind = "network_failure"
	ParseFailure    Kind = "parse_failure"
	DeliveryFailure Kind = "delivery_failure"
)

// Error 带类别与上游 HTTP 状态码的错误
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int // 上游返回的状态码，没有则为 0
	Err        error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + string(e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Network(op string, status int, err error) error {
	return &Error{Kind: NetworkFailure, Op: op, StatusCode: status, Err: err}
}

func Parse(op string, err error) error {
	return &Error{Kind: ParseFailure, Op: op, Err: err}
}

func Delivery(op string, status int, err error) error {
	return &Error{Kind: DeliveryFailure, Op: op, StatusCode: status, Err: err}
}

// KindOf 返回错误链上第一个 *Error 的类别，未知错误返回空串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusCode 把错误映射为对外 HTTP 状态码：外部依赖失败统一 502，其余 500
func StatusCode(err error) int {
	switch KindOf(err) {
	case NetworkFailure, ParseFailure, DeliveryFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
