/*
 Copyright 2026 Basalt Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package apitool

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/basaltos/basalt/pkg/types"
)

type ApiErrorCode string

const (
	ApiArgsError      ApiErrorCode = "ArgsError"
	ApiNotFoundError  ApiErrorCode = "NotFound"
	ApiNotGroupError  ApiErrorCode = "NotGroup"
	ApiIsGroupError   ApiErrorCode = "IsGroup"
	ApiNotEmptyError  ApiErrorCode = "NotEmpty"
	ApiEntryExisted   ApiErrorCode = "EntryExisted"
	ApiBusyError      ApiErrorCode = "Busy"
	ApiExhaustedError ApiErrorCode = "Exhausted"
	ApiInternalError  ApiErrorCode = "InternalError"
)

type Error struct {
	Code    ApiErrorCode `json:"code"`
	Message string       `json:"message"`
}

func Error2ApiErrorCode(err error) (int, ApiErrorCode) {
	if err == nil {
		return http.StatusOK, "NoError"
	}
	switch {
	case errors.Is(err, types.ErrNotFound):
		return http.StatusNotFound, ApiNotFoundError
	case errors.Is(err, types.ErrIsExist):
		return http.StatusBadRequest, ApiEntryExisted
	case errors.Is(err, types.ErrNoGroup):
		return http.StatusBadRequest, ApiNotGroupError
	case errors.Is(err, types.ErrIsGroup):
		return http.StatusBadRequest, ApiIsGroupError
	case errors.Is(err, types.ErrNotEmpty):
		return http.StatusBadRequest, ApiNotEmptyError
	case errors.Is(err, types.ErrNameTooLong):
		return http.StatusBadRequest, ApiArgsError
	case errors.Is(err, types.ErrUnsupported):
		return http.StatusBadRequest, ApiArgsError
	case errors.Is(err, types.ErrBusy):
		return http.StatusConflict, ApiBusyError
	case errors.Is(err, types.ErrExhausted):
		return http.StatusServiceUnavailable, ApiExhaustedError
	}
	return http.StatusInternalServerError, ApiInternalError
}
