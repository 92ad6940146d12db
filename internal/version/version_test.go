package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	oldCommit, oldDate := Commit, Date
	defer func() { Commit, Date = oldCommit, oldDate }()

	Commit, Date = "unknown", "unknown"
	if s := String(); !strings.HasPrefix(s, "swatchwise version dev (") {
		t.Errorf("Unexpected version string %q", s)
	}

	Commit, Date = "0123456789abcdef", "2026-01-01T00:00:00Z"
	if s := String(); !strings.Contains(s, "commit: 01234567,") {
		t.Errorf("Expected short commit in %q", s)
	}

	Commit = "abc"
	if s := String(); !strings.Contains(s, "commit: abc,") {
		t.Errorf("Expected short commit kept whole in %q", s)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); ua != "swatchwise/"+Version {
		t.Errorf("Unexpected user agent %q", ua)
	}
}
