package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dukerupert/licensa/internal/domain"
)

// rejectionStatus covers the codes middleware can reject a request with.
// handler.ErrorCodeToHTTPStatus is the full table; it lives in handler,
// which imports this package.
var rejectionStatus = map[string]int{
	domain.EINVALID:      http.StatusBadRequest,
	domain.EUNAUTHORIZED: http.StatusUnauthorized,
	domain.EFORBIDDEN:    http.StatusForbidden,
	domain.ETOOLARGE:     http.StatusRequestEntityTooLarge,
	domain.ERATELIMIT:    http.StatusTooManyRequests,
}

// reject stops the chain with the same JSON body handler.ErrorResponse
// writes: {"errorKind": ..., "message": ...}.
func reject(w http.ResponseWriter, r *http.Request, code, message string) {
	status, ok := rejectionStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	GetLogger(r.Context()).Info("request rejected",
		"code", code,
		"status", status,
		"reason", message,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"errorKind": code,
		"message":   message,
	})
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request) {
	reject(w, r, domain.EUNAUTHORIZED, "Authentication required")
}

func respondForbidden(w http.ResponseWriter, r *http.Request) {
	reject(w, r, domain.EFORBIDDEN, "You don't have permission to access this resource")
}

func respondTooManyRequests(w http.ResponseWriter, r *http.Request) {
	reject(w, r, domain.ERATELIMIT, "Too many requests")
}

func respondBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	reject(w, r, domain.EINVALID, message)
}
