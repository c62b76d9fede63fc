package model

import (
	"encoding/json"
	"testing"
)

// TestOutcomeString tests the String method of Outcome.
func TestOutcomeString(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		outcome  Outcome
		expected string
	}{
		{OutcomeSaved, "saved"},
		{OutcomeAlreadyPresent, "already_present"},
		{OutcomeSkipped, "skipped"},
		{OutcomeFailed, "failed"},
		{Outcome(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			t.Parallel()
			if tc.outcome.String() != tc.expected {
				t.Errorf("got %q, expected %q", tc.outcome.String(), tc.expected)
			}
		})
	}
}

// TestOutcomeSucceeded verifies that only saved and already-present count.
func TestOutcomeSucceeded(t *testing.T) {
	t.Parallel()

	want := map[Outcome]bool{
		OutcomeSaved:          true,
		OutcomeAlreadyPresent: true,
		OutcomeSkipped:        false,
		OutcomeFailed:         false,
	}
	for o, expected := range want {
		if o.Succeeded() != expected {
			t.Errorf("%s: expected Succeeded()=%v", o, expected)
		}
	}
}

// TestParseOutcome tests parsing of textual outcomes.
func TestParseOutcome(t *testing.T) {
	t.Parallel()

	t.Run("known values", func(t *testing.T) {
		t.Parallel()
		for _, o := range AllOutcomes() {
			parsed, err := ParseOutcome(o.String())
			if err != nil {
				t.Fatalf("unexpected error for %s: %v", o, err)
			}
			if parsed != o {
				t.Errorf("expected %s, got %s", o, parsed)
			}
		}
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		t.Parallel()
		parsed, err := ParseOutcome("  Already_Present ")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if parsed != OutcomeAlreadyPresent {
			t.Errorf("expected already_present, got %s", parsed)
		}
	})

	t.Run("unknown value", func(t *testing.T) {
		t.Parallel()
		if _, err := ParseOutcome("exploded"); err == nil {
			t.Error("expected error for unknown outcome")
		}
	})
}

// TestOutcomeJSON verifies outcomes are encoded as strings inside downloads.
func TestOutcomeJSON(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(ImageDownload{URL: "https://example.com/a.png", Outcome: OutcomeSkipped})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(data); got != `{"url":"https://example.com/a.png","outcome":"skipped"}` {
		t.Errorf("unexpected JSON: %s", got)
	}

	var decoded ImageDownload
	if err := json.Unmarshal([]byte(`{"url":"u","outcome":"failed"}`), &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Outcome != OutcomeFailed {
		t.Errorf("expected failed, got %s", decoded.Outcome)
	}

	if err := json.Unmarshal([]byte(`{"outcome":"bogus"}`), &decoded); err == nil {
		t.Error("expected error for bogus outcome")
	}
}
