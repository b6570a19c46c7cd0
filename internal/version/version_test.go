package version

import (
	"strings"
	"testing"
)

func TestRichVersionIncludesCommit(t *testing.T) {
	old := CommitHash
	t.Cleanup(func() { CommitHash = old })

	CommitHash = "abc123"
	got := RichVersion()
	if !strings.HasPrefix(got, Version()) || !strings.HasSuffix(got, "commit_hash=abc123") {
		t.Fatalf("unexpected rich version: %q", got)
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize("rc.1+meta"); got != "rc1meta" {
		t.Fatalf("unexpected normalized string: %q", got)
	}
}
