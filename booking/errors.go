package booking

import (
	"fmt"
	"strings"
)

// ValidationError lists required form fields that were empty and fields
// whose values cannot be booked.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// SchedulingError means the authoritative scheduler did not accept the
// booking. StatusCode is 0 when no HTTP response was received.
type SchedulingError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SchedulingError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scheduling failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "scheduling failed: " + e.Message
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// ConfigurationError means the CRM mirror is missing credentials.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "crm mirror not configured: missing " + strings.Join(e.Missing, ", ")
}

// CrmMirrorError means the CRM rejected or never received the record.
type CrmMirrorError struct {
	StatusCode int
	Status     string
	Err        error
}

func (e *CrmMirrorError) Error() string {
	if e.StatusCode != 0 {
		return "crm mirror failed: " + e.Status
	}
	if e.Err != nil {
		return "crm mirror failed: " + e.Err.Error()
	}
	return "crm mirror failed"
}

func (e *CrmMirrorError) Unwrap() error { return e.Err }
