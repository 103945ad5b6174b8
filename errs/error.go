package errs

import (
	"fmt"
	"strings"
)

type CodeError interface {
	error
	Code() int32
	Print(extras ...string) CodeError
	Printf(format string, args ...any) CodeError
	Wrap(cause error) CodeError
	Is(error) bool
	Unwrap() error
}

func CreateCodeError(code int32, desc string) CodeError {
	return &codeError{
		Errno: code, // 错误码
		Desc:  desc, // 错误描述, 如 INTERRUPTED
	}
}

// WrapError 非CodeError统一转为Unknown, 保留原始错误
func WrapError(err error) CodeError {
	if err == nil {
		return nil
	}
	if x, ok := err.(*codeError); ok {
		return x
	}
	return Unknown.Wrap(err)
}

type codeError struct {
	Errno int32
	Desc  string
	cause error
}

func (e *codeError) Code() int32 {
	return e.Errno
}

func (e *codeError) Error() string {
	if e.cause != nil {
		return e.Desc + ": " + e.cause.Error()
	}
	return e.Desc
}

func (e *codeError) String() string {
	return fmt.Sprintf("errno: %d, desc: %s", e.Errno, e.Error())
}

func (e *codeError) Print(extras ...string) CodeError {
	if len(extras) == 0 {
		return e
	}
	desc := e.Desc + "," + strings.Join(extras, ",")
	return &codeError{Errno: e.Errno, Desc: desc, cause: e.cause}
}

func (e *codeError) Printf(format string, args ...any) CodeError {
	if len(format) == 0 {
		return e
	}
	desc := fmt.Sprintf(e.Desc+","+format, args...)
	return &codeError{Errno: e.Errno, Desc: desc, cause: e.cause}
}

// Wrap 附带底层错误, errors.Is 对错误码和底层错误都生效
func (e *codeError) Wrap(cause error) CodeError {
	return &codeError{Errno: e.Errno, Desc: e.Desc, cause: cause}
}

func (e *codeError) Unwrap() error {
	return e.cause
}

func (e *codeError) Is(target error) bool {
	if x, ok := target.(*codeError); ok {
		return x.Errno == e.Errno
	}
	return false
}
