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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case serialError:
		return specificErr.code()

	default:
		if errors.Is(specificErr, context.Canceled) {
			return CanceledCode
		} else if errors.Is(specificErr, context.DeadlineExceeded) {
			return TimeoutCode
		} else {
			return errUnexpected.code()
		}
	}
}

// Kind 返回错误种类名称，未知错误返回空串。
func Kind(err error) string {
	if err == nil {
		return ""
	}
	if cause, ok := errors.Cause(err).(serialError); ok {
		return cause.kind
	}
	return ""
}

// IsEncodeError 判断错误是否来自编码阶段（分类、钩子、发射）。
func IsEncodeError(err error) bool {
	code := Code(err)
	return code >= 200 && code < 300
}

// IsDecodeError 判断错误是否来自解码阶段。
func IsDecodeError(err error) bool {
	code := Code(err)
	return code >= 300 && code < 400
}

func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(serialError); ok {
		return merr.errType
	}

	return SystemError
}

// 配置相关错误封装。
func WrapErrInvalidOption(name string, actual any, msg ...string) error {
	return withMsg(wrapFields(ErrInvalidOption,
		value("option", name),
		value("type", fmt.Sprintf("%T", actual)),
	), msg)
}

// 编码相关错误封装。
func WrapErrExcessivelySparseArray(size, max uint64, msg ...string) error {
	return withMsg(wrapFields(ErrExcessivelySparseArray,
		value("size", size),
		value("max", max),
	), msg)
}

func WrapErrInvalidSerializeHint(hint any, msg ...string) error {
	return withMsg(wrapFields(ErrInvalidSerializeHint, value("hint", hint)), msg)
}

func WrapErrInvalidNumber(number float64, msg ...string) error {
	return withMsg(wrapFields(ErrInvalidNumber, value("number", number)), msg)
}

func WrapErrUnsupportedType(typeName string, msg ...string) error {
	return withMsg(wrapFields(ErrUnsupportedType, value("type", typeName)), msg)
}

func WrapErrDepthExceeded(depth, limit int, msg ...string) error {
	return withMsg(wrapFields(ErrDepthExceeded,
		bound("depth", depth, 0, limit-1),
	), msg)
}

// WrapErrHookFailed 保留钩子返回的原始错误，errors.Is 对两者均成立。
func WrapErrHookFailed(cause error, msg ...string) error {
	if cause == nil {
		return nil
	}
	err := wrapFieldsWithDesc(ErrHookFailed, strings.Join(msg, "->"))
	return Combine(cause, err)
}

// 解码相关错误封装。
func WrapErrMalformedExtension(ext string, reason string, msg ...string) error {
	return withMsg(wrapFieldsWithDesc(ErrMalformedExtension, reason, value("ext", ext)), msg)
}

func WrapErrMalformedInput(format string, cause error, msg ...string) error {
	reason := "unexpected input"
	if cause != nil {
		reason = cause.Error()
	}
	return withMsg(wrapFieldsWithDesc(ErrMalformedInput, reason, value("format", format)), msg)
}

func WrapErrTrailingData(format string, remaining int, msg ...string) error {
	return withMsg(wrapFields(ErrTrailingData,
		value("format", format),
		value("remaining", remaining),
	), msg)
}

// 参数相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	return withMsg(wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	), msg)
}

func WrapErrParameterInvalidRange[T any](lower, upper, actual T, msg ...string) error {
	return withMsg(wrapFields(ErrParameterInvalid,
		bound("value", actual, lower, upper),
	), msg)
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

func WrapErrOperationNotSupported(operation string, msg ...string) error {
	return withMsg(wrapFields(ErrOperationNotSupported, value("operation", operation)), msg)
}

func wrapFields(err serialError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err serialError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	if desc != "" {
		err.msg += ": " + desc
	}
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}

// withMsg 将调用方给出的上下文按 "->" 串联后包装到 err 外层。
func withMsg(err error, msg []string) error {
	if len(msg) == 0 {
		return err
	}
	return errors.Wrap(err, strings.Join(msg, "->"))
}
