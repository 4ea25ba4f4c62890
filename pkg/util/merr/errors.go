// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

type ErrorType int32

const (
	SystemError ErrorType = 0
	InputError  ErrorType = 1
)

var ErrorTypeName = map[ErrorType]string{
	SystemError: "system_error",
	InputError:  "input_error",
}

func (err ErrorType) String() string {
	return ErrorTypeName[err]
}

// 叶子错误。新增前先确认下面是否已有可复用的定义；
// 1xx 配置，2xx 编码，3xx 解码。
var (
	ErrInvalidOption = newSerialError("invalid option", 100, WithKind("InvalidOption"), WithErrorType(InputError))

	ErrExcessivelySparseArray = newSerialError("excessively sparse array", 200, WithKind("ExcessivelySparseArray"), WithErrorType(InputError))
	ErrInvalidSerializeHint   = newSerialError("invalid __serialize value", 201, WithKind("InvalidCustomSerializeHint"), WithErrorType(InputError))
	ErrInvalidNumber          = newSerialError("number must not be NaN or Inf", 202, WithKind("InvalidNumber"), WithErrorType(InputError))
	ErrUnsupportedType        = newSerialError("unsupported type", 203, WithKind("UnsupportedType"), WithErrorType(InputError))
	ErrDepthExceeded          = newSerialError("too high nest level", 204, WithKind("DepthExceeded"), WithErrorType(InputError))
	ErrHookFailed             = newSerialError("custom serialize hook failed", 205, WithKind("HookFailed"))

	ErrMalformedExtension = newSerialError("malformed extension", 300, WithKind("MalformedExtension"), WithErrorType(InputError))
	ErrMalformedInput     = newSerialError("malformed input", 301, WithKind("MalformedInput"), WithErrorType(InputError))
	ErrTrailingData       = newSerialError("trailing data after value", 302, WithKind("MalformedInput"), WithErrorType(InputError))

	ErrParameterInvalid = newSerialError("invalid parameter", 1100)

	ErrIoFailed = newSerialError("IO failed", 1001)

	ErrOperationNotSupported = newSerialError("unsupported operation", 3000)

	// 仅用于把未知错误归一为 serialError，不要导出。
	errUnexpected = newSerialError("unexpected error", (1<<16)-1)
)

type errorOption func(*serialError)

func WithDetail(detail string) errorOption {
	return func(err *serialError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *serialError) {
		err.errType = etype
	}
}

// WithKind 设置错误种类名称，供调用方按种类分支处理。
func WithKind(kind string) errorOption {
	return func(err *serialError) {
		err.kind = kind
	}
}

type serialError struct {
	msg     string
	detail  string
	kind    string
	errCode int32
	errType ErrorType
}

func newSerialError(msg string, code int32, options ...errorOption) serialError {
	err := serialError{
		msg:     msg,
		detail:  msg,
		errCode: code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e serialError) code() int32 {
	return e.errCode
}

func (e serialError) Error() string {
	return e.msg
}

func (e serialError) Detail() string {
	return e.detail
}

func (e serialError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(serialError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// To make merr work for multi errors,
	// we need cause of multi errors, which defined as the last error
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}
