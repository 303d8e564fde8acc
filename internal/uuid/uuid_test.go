package uuid

import "testing"

// TestNewProducesValidV4 tests that generated UUIDs validate.
func TestNewProducesValidV4(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("generated UUID is not valid v4: %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate UUID generated: %s", id)
		}
		seen[id] = true
	}
}

// TestIsValidRejectsMalformed tests rejection of malformed inputs.
func TestIsValidRejectsMalformed(t *testing.T) {
	invalid := []string{
		"",
		"not-a-uuid",
		"123e4567-e89b-12d3-a456-426614174000",  // v1, not v4
		"123e4567e89b42d3a456426614174000",      // missing dashes
		"123e4567-e89b-42d3-c456-426614174000",  // bad variant bits
		"123e4567-e89b-42d3-a456-42661417400",   // too short
		"123e4567-e89b-42d3-a456-4266141740000", // too long
	}

	for _, s := range invalid {
		if IsValid(s) {
			t.Errorf("IsValid(%q) = true, want false", s)
		}
		if Validate(s) == nil {
			t.Errorf("Validate(%q) = nil, want error", s)
		}
	}
}
