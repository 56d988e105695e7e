package api

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	maxPropertyNameLen = 256
	maxPropertyValLen  = 16 * 1024
	maxScopeNameLen    = 128
	maxBatchUpdates    = 4096

	defaultListLimit = 100
	maxListLimit     = 1000
)

// ValidatePropertyName rejects names the coordinator or store cannot take:
// empty, oversized, or containing control characters.
func ValidatePropertyName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("property name must not be empty")
	}
	if len(name) > maxPropertyNameLen {
		return fmt.Errorf("property name exceeds %d bytes", maxPropertyNameLen)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("property name must not contain control characters")
		}
	}
	return nil
}

// ValidatePropertyValue caps value size; values are otherwise opaque strings.
func ValidatePropertyValue(value string) error {
	if len(value) > maxPropertyValLen {
		return fmt.Errorf("property value exceeds %d bytes", maxPropertyValLen)
	}
	return nil
}

// ValidateScopeName enforces the scope naming rules used in store keys:
// letters, digits, dot, dash, underscore.
func ValidateScopeName(scope string) error {
	if strings.TrimSpace(scope) == "" {
		return fmt.Errorf("scope name must not be empty")
	}
	if len(scope) > maxScopeNameLen {
		return fmt.Errorf("scope name exceeds %d bytes", maxScopeNameLen)
	}
	for _, r := range scope {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_':
		default:
			return fmt.Errorf("scope name contains invalid character %q", r)
		}
	}
	return nil
}

// clampListLimit normalizes a requested page size.
func clampListLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
