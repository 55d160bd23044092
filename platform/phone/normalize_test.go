package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	if got := NormalizeE164("06 12345678"); got != "+31612345678" {
		t.Fatalf("expected +31612345678, got %q", got)
	}
	if got := NormalizeE164("  garbage "); got != "garbage" {
		t.Fatalf("expected trimmed fallback, got %q", got)
	}
}
