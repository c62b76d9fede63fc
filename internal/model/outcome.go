package model

import (
	"fmt"
	"strings"
)

// Outcome classifies the result of downloading a single image.
//
// Design decision: We use iota-based constants with text marshaling so that
// outcomes compare cheaply in code but are stored and reported as stable
// strings ("saved", "already_present", ...).
type Outcome int

const (
	// OutcomeSaved means a new file was written to the output directory.
	OutcomeSaved Outcome = iota

	// OutcomeAlreadyPresent means a file with the derived name already existed.
	// It counts as a success; the existing file is neither re-downloaded,
	// overwritten nor verified.
	OutcomeAlreadyPresent

	// OutcomeSkipped means the image was not written because no usable
	// filename could be derived or the response was not image content.
	OutcomeSkipped

	// OutcomeFailed means a network or I/O error prevented the download.
	OutcomeFailed
)

// outcomeNames maps outcomes to their stable textual form.
var outcomeNames = map[Outcome]string{
	OutcomeSaved:          "saved",
	OutcomeAlreadyPresent: "already_present",
	OutcomeSkipped:        "skipped",
	OutcomeFailed:         "failed",
}

// AllOutcomes lists every outcome in reporting order.
func AllOutcomes() []Outcome {
	return []Outcome{OutcomeSaved, OutcomeAlreadyPresent, OutcomeSkipped, OutcomeFailed}
}

// String returns the stable textual form of the outcome.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Succeeded reports whether the outcome counts toward the download total.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSaved || o == OutcomeAlreadyPresent
}

// ParseOutcome converts the textual form back into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for o, name := range outcomeNames {
		if name == s {
			return o, nil
		}
	}
	return OutcomeFailed, fmt.Errorf("unknown outcome %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
