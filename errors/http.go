package errors

import (
	"fmt"
	"net/http"
	"reflect"
)

const internalLog = "internal error"

// HTTPInfo returns the status code and message that should be used as a
// response to the API client.
//
// Any error that is not wrapping one of the registered root errors is
// considered internal. When not running in a debug mode, messages of
// internal errors are replaced with a generic "internal error" text.
func HTTPInfo(err error, debug bool) (int, string) {
	if errIsNil(err) {
		return http.StatusOK, ""
	}

	root := rootError(err)
	if root == nil || ErrPanic.Is(root) {
		if debug {
			return http.StatusInternalServerError, fmt.Sprintf("%+v", err)
		}
		return http.StatusInternalServerError, internalLog
	}

	msg := err.Error()
	if debug {
		msg = fmt.Sprintf("%+v", err)
	}

	switch root {
	case ErrNotFound:
		return http.StatusNotFound, msg
	case ErrUnauthorized:
		return http.StatusForbidden, msg
	case ErrInput, ErrEmpty, ErrAmount, ErrType:
		return http.StatusBadRequest, msg
	case ErrDuplicate, ErrState, ErrImmutable, ErrExpired:
		return http.StatusConflict, msg
	case ErrNetwork, ErrLedger, ErrVendor:
		return http.StatusBadGateway, msg
	case ErrTimeout:
		return http.StatusGatewayTimeout, msg
	default:
		return http.StatusInternalServerError, msg
	}
}

// rootError returns the registered root error that given error is wrapping
// or nil if there is none.
func rootError(err error) *Error {
	for {
		switch e := err.(type) {
		case *Error:
			return e
		case Error:
			return usedCodes[e.code]
		}

		c, ok := err.(causer)
		if !ok {
			return nil
		}
		err = c.Cause()
	}
}

// errIsNil returns true if value represented by the given error is nil.
func errIsNil(err error) bool {
	if err == nil {
		return true
	}
	if val := reflect.ValueOf(err); val.Kind() == reflect.Ptr {
		return val.IsNil()
	}
	return false
}
