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
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
)

// Code 返回给定错误对应的错误码。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	switch specificErr := cause.(type) {
	case serdeError:
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

func IsRetryableErr(err error) bool {
	if err, ok := err.(serdeError); ok {
		return err.retriable
	}

	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func WrapErrAsInputError(err error) error {
	if merr, ok := err.(serdeError); ok {
		WithErrorType(InputError)(&merr)
		return merr
	}
	return err
}

func WrapErrAsInputErrorWhen(err error, targets ...serdeError) error {
	if merr, ok := err.(serdeError); ok {
		for _, target := range targets {
			if target.errCode == merr.errCode {
				log.Info("mark error as input error", zap.Error(err))
				WithErrorType(InputError)(&merr)
				return merr
			}
		}
	}
	return err
}

// GetErrorType 返回错误类型；包装过的错误按其根因判断。
func GetErrorType(err error) ErrorType {
	if merr, ok := errors.Cause(err).(serdeError); ok {
		return merr.errType
	}

	return SystemError
}

// 参数相关错误封装。
func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	err := wrapFields(ErrParameterMissing,
		value("missing_param", param),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// IO 相关错误封装。
func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

func WrapErrServiceInternal(reason string, args ...string) error {
	err := errors.Wrap(ErrServiceInternal, reason)
	if len(args) > 0 {
		err = errors.Wrap(err, strings.Join(args, "->"))
	}
	return err
}

// 帧相关错误封装。
func WrapErrStreamFrameTooLarge(size, limit uint64) error {
	return wrapFields(ErrStreamFrameTooLarge,
		value("size", size),
		value("limit", limit),
	)
}

func WrapErrStreamCorrupted(reason string, args ...any) error {
	return errors.Wrapf(ErrStreamCorrupted, reason, args...)
}

func WrapErrOperationNotSupported(operation string, msg ...string) error {
	err := wrapFields(ErrOperationNotSupported, value("operation", operation))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// Serde 流相关错误封装。
func WrapErrSerdeInvalidFormat(pos int, reason string, args ...any) error {
	return wrapFieldsWithDesc(ErrSerdeInvalidFormat, fmt.Sprintf(reason, args...), value("pos", pos))
}

func WrapErrSerdeUnexpectedEOF(pos, need, remaining int) error {
	return wrapFields(ErrSerdeUnexpectedEOF,
		value("pos", pos),
		value("need", need),
		value("remaining", remaining),
	)
}

func WrapErrSerdeInvalidRef(table string, index uint64, size int) error {
	return wrapFields(ErrSerdeInvalidRef,
		value("table", table),
		bound("index", index, 0, size-1),
	)
}

func WrapErrSerdeTypeMismatch(src, dst any, msg ...string) error {
	err := wrapFields(ErrSerdeTypeMismatch,
		value("src", src),
		value("dst", dst),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSerdeNumericOverflow(target string, val, lower, upper any) error {
	return wrapFields(ErrSerdeNumericOverflow, bound(target, val, lower, upper))
}

func WrapErrSerdeUnsupportedVersion(actual, expected any) error {
	return wrapFields(ErrSerdeUnsupportedVer,
		value("actual", actual),
		value("expected", expected),
	)
}

func WrapErrSerdeDepthExceeded(limit int) error {
	return wrapFields(ErrSerdeDepthExceeded, value("limit", limit))
}

// Serde 类型系统相关错误封装。
func WrapErrSerdeUnregisteredType(name any, msg ...string) error {
	err := wrapFields(ErrSerdeUnregisteredType, value("type", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSerdeDuplicateType(code uint32, existing, incoming any) error {
	return wrapFields(ErrSerdeDuplicateType,
		value("code", code),
		value("existing", existing),
		value("incoming", incoming),
	)
}

func WrapErrSerdeInstantiation(name any, cause error) error {
	if cause == nil {
		return wrapFields(ErrSerdeInstantiation, value("type", name))
	}
	return wrapFieldsWithDesc(ErrSerdeInstantiation, cause.Error(), value("type", name))
}

func WrapErrSerdeUnsupportedType(name any, msg ...string) error {
	err := wrapFields(ErrSerdeUnsupportedType, value("type", name))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrSerdeCallback(hook string, cause error) error {
	if cause == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrSerdeCallback, cause.Error(), value("hook", hook))
}

func wrapFields(err serdeError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err serdeError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
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
