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

// Define leaf errors here,
// WARN: take care to add new error,
// check whether you can use the errors below before adding a new one.
// Name: Err + related prefix + error name
var (
	// Parameter related
	ErrParameterInvalid = newSerdeError("invalid parameter", 1100, false)
	ErrParameterMissing = newSerdeError("missing parameter", 1101, false)

	// IO related
	ErrIoFailed = newSerdeError("IO failed", 1001, false)

	// Serde stream related, all of them are raised by malformed input
	ErrSerdeInvalidFormat   = newSerdeError("invalid serialized format", 4000, false, WithErrorType(InputError))
	ErrSerdeUnexpectedEOF   = newSerdeError("unexpected end of serialized stream", 4001, false, WithErrorType(InputError))
	ErrSerdeInvalidRef      = newSerdeError("invalid back reference", 4002, false, WithErrorType(InputError))
	ErrSerdeTypeMismatch    = newSerdeError("serialized value does not fit destination type", 4003, false, WithErrorType(InputError))
	ErrSerdeNumericOverflow = newSerdeError("numeric value out of range", 4004, false, WithErrorType(InputError))
	ErrSerdeUnsupportedVer  = newSerdeError("unsupported format version", 4005, false, WithErrorType(InputError))
	ErrSerdeDepthExceeded   = newSerdeError("object graph nesting too deep", 4006, false, WithErrorType(InputError))

	// Serde type system related
	ErrSerdeUnregisteredType = newSerdeError("type is not registered", 4100, false)
	ErrSerdeDuplicateType    = newSerdeError("type code already registered", 4101, false)
	ErrSerdeInstantiation    = newSerdeError("cannot instantiate type", 4102, false)
	ErrSerdeUnsupportedType  = newSerdeError("type cannot be serialized", 4103, false)
	ErrSerdeCallback         = newSerdeError("serialization callback failed", 4104, false)

	// Stream framing related
	ErrStreamFrameTooLarge = newSerdeError("frame exceeds size limit", 4200, false, WithErrorType(InputError))
	ErrStreamCorrupted     = newSerdeError("corrupted stream frame", 4201, false, WithErrorType(InputError))

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to serdeError
	errUnexpected = newSerdeError("unexpected error", (1<<16)-1, false)

	// General
	ErrServiceInternal       = newSerdeError("service internal error", 5, false)
	ErrOperationNotSupported = newSerdeError("unsupported operation", 3000, false)
)

type errorOption func(*serdeError)

func WithDetail(detail string) errorOption {
	return func(err *serdeError) {
		err.detail = detail
	}
}

func WithErrorType(etype ErrorType) errorOption {
	return func(err *serdeError) {
		err.errType = etype
	}
}

type serdeError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
	errType   ErrorType
}

func newSerdeError(msg string, code int32, retriable bool, options ...errorOption) serdeError {
	err := serdeError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e serdeError) code() int32 {
	return e.errCode
}

func (e serdeError) Error() string {
	return e.msg
}

func (e serdeError) Detail() string {
	return e.detail
}

func (e serdeError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(serdeError); ok {
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
