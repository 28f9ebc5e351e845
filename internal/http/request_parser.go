// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for extracting and validating the tenant
// header and query parameters shared by the API handlers.

package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"recurra/internal/core"
)

// HeaderUserID carries the tenant every API call acts for.
const HeaderUserID = "X-User-ID"

const maxUserIDLength = 128

// ParseUserID reads and sanitizes the tenant header.
func ParseUserID(r *http.Request) (string, error) {
	userID := sanitizeInput(r.Header.Get(HeaderUserID))
	if userID == "" {
		return "", core.ErrMissingUser
	}
	if len(userID) > maxUserIDLength {
		return "", fmt.Errorf("%s header too long", HeaderUserID)
	}
	return userID, nil
}

// ParseDays reads the "days" query parameter, falling back to def when it is
// absent. Negative or non-numeric values are rejected.
func ParseDays(r *http.Request, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("days"))
	if v == "" {
		return def, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil || days < 0 {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidDays, v)
	}
	return days, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
