// Package env has small helpers for reading process environment values
// before the full config is loaded.
package env

import "os"

// Get reads an environment variable, falling back when it is unset or empty.
// Empty is treated as unset because container runtimes often export blank
// placeholders.
func Get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
