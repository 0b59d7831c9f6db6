// Package middleware carries the HTTP middleware chain shared by every
// endpoint: request ids, CORS and access logging.
package middleware

import (
	"context"
	"net/http"

	"github.com/MadAppGang/httplog"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

type Middleware func(next http.Handler) http.Handler

var (
	CORS       = cors.New(cors.Options{})
	HTTPLogger = httplog.LoggerWithConfig(httplog.LoggerConfig{
		RouterName: "ClassQuiz",
		Formatter:  httplog.DefaultLogFormatter,
	})
)

type ctxKeyRequestID int

const RequestIDKey ctxKeyRequestID = 0

// RequestID tags every request with an X-Request-ID, generating one when
// the client did not provide it.
func RequestID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)

		w.Header().Set("X-Request-ID", requestID)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Chain applies the given middlewares around h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, mw := range mws {
		h = mw(h)
	}
	return h
}

// ChainDefaults wraps h in the default chain.
func ChainDefaults(h http.Handler) http.Handler {
	return Chain(h, RequestID, CORS.Handler, HTTPLogger)
}
