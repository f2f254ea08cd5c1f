package domain

import (
	"fmt"
	"strings"
)

// ScoreRequest is the identity input a caller submits, both when
// requesting a token and when presenting one for scoring. Extra fields
// in the request body are passed through untouched; these three are the
// only ones this core reads.
type ScoreRequest struct {
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Identifier string `json:"identifier"`
}

// ValidationError reports absent or empty required fields. The caller
// has to fix the request; retrying as-is will never succeed.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Validate checks the required fields and returns a ValidationError
// naming every missing one.
func (r ScoreRequest) Validate() error {
	var missing []string

	if strings.TrimSpace(r.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(r.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(r.Identifier) == "" {
		missing = append(missing, "identifier")
	}

	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
