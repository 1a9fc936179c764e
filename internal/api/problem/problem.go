package problem

import (
	"encoding/json"
	"net/http"
	"strings"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.paymentapp.com/"

// Details represents RFC 7807 Problem Details. Code repeats the type slug so
// clients can branch on the machine reason without parsing URLs.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Code      string `json:"code,omitempty"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Slug is the inverse of Type; it returns "" for foreign problem types.
func Slug(problemType string) string {
	slug, ok := strings.CutPrefix(problemType, baseTypeURL)
	if !ok {
		return ""
	}
	return slug
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	instance := ""
	if r != nil {
		instance = r.URL.Path
	}
	// The trace middleware sets the response header after sanitising the inbound one.
	requestID := w.Header().Get("X-Trace-ID")
	if requestID == "" && r != nil {
		requestID = r.Header.Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Details{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Code:      Slug(problemType),
		Instance:  instance,
		RequestID: requestID,
	})
}
