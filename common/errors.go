// Copyright 2022 The pubrelay Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"errors"
	"fmt"
	"net/http"
)

// Relay error codes. The values follow HTTP status families so the REST
// boundary can return them directly.
const (
	// ErrorCodeBadRequest a required field is missing, or the operation is
	// not permitted against the referenced resource
	ErrorCodeBadRequest = http.StatusBadRequest
	// ErrorCodeUnauthorized the client identity is invalid, expired, or lacks
	// access to the referenced channel
	ErrorCodeUnauthorized = http.StatusUnauthorized
	// ErrorCodeNotFound the referenced channel or client does not exist
	ErrorCodeNotFound = http.StatusNotFound
	// ErrorCodeConflict resource creation collides with an existing resource
	ErrorCodeConflict = http.StatusConflict
	// ErrorCodeInternal persistence layer or other internal failure
	ErrorCodeInternal = http.StatusInternalServerError
)

// Error classified relay error
type Error struct {
	// Code is one of the ErrorCode* constants
	Code int `json:"code"`
	// Message describes the failure
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// NewBadRequestError define a new BadRequest error
func NewBadRequestError(format string, args ...interface{}) error {
	return &Error{Code: ErrorCodeBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NewUnauthorizedError define a new Unauthorized error
func NewUnauthorizedError(format string, args ...interface{}) error {
	return &Error{Code: ErrorCodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError define a new NotFound error
func NewNotFoundError(format string, args ...interface{}) error {
	return &Error{Code: ErrorCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError define a new Conflict error
func NewConflictError(format string, args ...interface{}) error {
	return &Error{Code: ErrorCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError define a new Internal error
func NewInternalError(format string, args ...interface{}) error {
	return &Error{Code: ErrorCodeInternal, Message: fmt.Sprintf(format, args...)}
}

// ErrorCodeOf fetch the relay error code of an error, ErrorCodeInternal if unclassified
func ErrorCodeOf(err error) int {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Code
	}
	return ErrorCodeInternal
}

// IsNotFoundError whether an error is a NotFound error
func IsNotFoundError(err error) bool {
	return ErrorCodeOf(err) == ErrorCodeNotFound
}

// IsConflictError whether an error is a Conflict error
func IsConflictError(err error) bool {
	return ErrorCodeOf(err) == ErrorCodeConflict
}

// IsBadRequestError whether an error is a BadRequest error
func IsBadRequestError(err error) bool {
	return ErrorCodeOf(err) == ErrorCodeBadRequest
}

// IsUnauthorizedError whether an error is an Unauthorized error
func IsUnauthorizedError(err error) bool {
	return ErrorCodeOf(err) == ErrorCodeUnauthorized
}
