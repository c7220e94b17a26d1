// Package id provides unique identifier generation for sessions and attempts.
package id

import "github.com/google/uuid"

// Generate creates a new random (version 4) UUID string.
// Example: 9f3c6f0e-2a4b-4c1d-8e5f-0a1b2c3d4e5f
func Generate() string {
	return uuid.NewString()
}

// Valid reports whether s is a well-formed identifier.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
