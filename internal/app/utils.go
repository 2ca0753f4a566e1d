// Package app utility functions and helpers
package app

import (
	"encoding/json"
	"net/http"
	"time"
)

// parseDurationSafe parses durationStr, returning fallback when it is empty
// or malformed.
func parseDurationSafe(durationStr string, fallback time.Duration) time.Duration {
	if durationStr == "" {
		return fallback
	}
	if d, err := time.ParseDuration(durationStr); err == nil {
		return d
	}
	return fallback
}

// writeJSON writes v as an indented JSON response
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.Encode(v)
}

func getStatusString(healthy bool) string {
	if healthy {
		return "healthy"
	}
	return "unhealthy"
}
