package core

import "github.com/google/uuid"

// NewID generates a unique identifier for sessions, runs, messages and
// event correlation.
func NewID() string {
	return uuid.NewString()
}
