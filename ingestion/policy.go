package ingestion

import (
	"fmt"
	"strings"
)

// MarkPolicy decides when a file is recorded in the ledger.
type MarkPolicy int

const (
	// MarkAlways marks a parsed file after every row was attempted,
	// even if some or all rows failed.
	MarkAlways MarkPolicy = iota

	// MarkOnFullSuccess marks a file only when no row failed, so the
	// next trigger ingests it again.
	MarkOnFullSuccess
)

// String returns the configuration name of the policy.
func (p MarkPolicy) String() string {
	switch p {
	case MarkAlways:
		return "always"
	case MarkOnFullSuccess:
		return "full-success"
	default:
		return fmt.Sprintf("MarkPolicy(%d)", int(p))
	}
}

// ParseMarkPolicy parses a policy name as accepted in configuration.
// The empty string selects MarkAlways.
func ParseMarkPolicy(s string) (MarkPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "always":
		return MarkAlways, nil
	case "full-success", "full_success", "on-full-success":
		return MarkOnFullSuccess, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMarkPolicy, s)
	}
}

func (p MarkPolicy) shouldMark(rowsFailed int) bool {
	return p == MarkAlways || rowsFailed == 0
}
