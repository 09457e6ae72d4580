package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	SessionID       ID
	ConfigurationID ID
)

func (id SessionID) String() string       { return ID(id).String() }
func (id ConfigurationID) String() string { return ID(id).String() }

// NewSessionID creates a fresh pivot session identifier
func NewSessionID() SessionID { return SessionID(NewID()) }

// NewConfigurationID creates a fresh saved-configuration identifier
func NewConfigurationID() ConfigurationID { return ConfigurationID(NewID()) }

// ParseSessionID parses a string into SessionID
func ParseSessionID(s string) (SessionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	return SessionID(s), nil
}

// ParseConfigurationID parses a string into ConfigurationID
func ParseConfigurationID(s string) (ConfigurationID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("configuration ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("configuration ID %q is not a UUID: %w", s, err)
	}
	return ConfigurationID(s), nil
}
