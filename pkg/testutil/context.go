// Package testutil provides request helpers for handler tests.
package testutil

import (
	"net/http"
	"time"

	id "realhub/pkg/domain"
	"realhub/pkg/requestcontext"
)

// WithUserID stamps an authenticated user onto the request context, simulating
// what the auth middleware does for a valid bearer token. Invalid IDs are
// silently ignored so the request stays anonymous.
func WithUserID(req *http.Request, userID string) *http.Request {
	parsed, err := id.ParseUserID(userID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithUserID(req.Context(), parsed))
}

// WithActorID is WithUserID for callers that already hold a typed ID.
func WithActorID(req *http.Request, userID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithUserID(req.Context(), userID))
}

// WithTime pins the request clock, simulating the request-time middleware.
func WithTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

// WithRequestID stamps a correlation ID onto the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
