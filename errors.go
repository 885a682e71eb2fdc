package xgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrUserNotFound is returned when a handle does not resolve to an available account.
var ErrUserNotFound = errors.New("user not found")

// APIError is a non-2xx HTTP response.
type APIError struct {
	Endpoint string
	Status   int
	Body     string // truncated
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s HTTP %d: %s", e.Endpoint, e.Status, e.Body)
}

// DecodeError means a response body did not unmarshal into the expected shape.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ResponseError is an error payload carried inside a 2xx response.
type ResponseError struct {
	Endpoint string
	Code     int
	Message  string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Endpoint, e.Code, e.Message)
}

// apiErrors is the {"errors":[...]} envelope shared by GraphQL and v1.1 responses.
type apiErrors struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// responseError returns the first error of an {"errors":[...]} body, or nil.
func responseError(endpoint string, body []byte) error {
	var env apiErrors
	if json.Unmarshal(body, &env) != nil || len(env.Errors) == 0 {
		return nil
	}
	return &ResponseError{Endpoint: endpoint, Code: env.Errors[0].Code, Message: env.Errors[0].Message}
}

// errorClass groups error codes by what the session transport does about them.
type errorClass int

const (
	errNone          errorClass = iota
	errBanned                   // 88 : rate limit abuse
	errSuspended                // 64 : account suspended
	errLocked                   // 326 : account locked (captcha needed)
	errCSRF                     // 353 : csrf token mismatch
	errAuthExpired              // 32 : could not authenticate
	errBlocked                  // 161 : blocked from performing action
	errNotAuthorized            // 179, 219 : not authorized
	errInternal                 // 131 : internal error
)

// classifyError inspects a response body for known error codes.
func classifyError(body []byte) errorClass {
	var env apiErrors
	if json.Unmarshal(body, &env) != nil {
		return errNone
	}
	for _, e := range env.Errors {
		switch e.Code {
		case 88:
			return errBanned
		case 64:
			return errSuspended
		case 326:
			return errLocked
		case 353:
			return errCSRF
		case 32:
			return errAuthExpired
		case 161:
			return errBlocked
		case 179, 219:
			return errNotAuthorized
		case 131:
			return errInternal
		}
	}
	return errNone
}

// affectsSession reports whether the class is about the account rather than the request.
func (c errorClass) affectsSession() bool {
	switch c {
	case errBanned, errSuspended, errLocked, errCSRF, errAuthExpired:
		return true
	}
	return false
}

// parseRateLimitReset parses the x-rate-limit-reset unix timestamp header.
// Falls back to 15 minutes from now if missing or invalid.
func parseRateLimitReset(v string) time.Time {
	if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(ts, 0)
	}
	return time.Now().Add(15 * time.Minute)
}

func truncateBytes(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
