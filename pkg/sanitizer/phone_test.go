package sanitizer

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{"us number with formatting", "(415) 555-2671", "+14155552671"},
		{"already e164", "+14155552671", "+14155552671"},
		{"israeli mobile", "054-123-4567", "+972541234567"},
		{"garbage", "not a phone", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePhone(tc.input); got != tc.expected {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestTrimBounded(t *testing.T) {
	if got := TrimBounded("  toney  ", 120); got != "toney" {
		t.Errorf("expected trimmed value, got %q", got)
	}
	if got := TrimBounded("abcdef", 3); got != "abc" {
		t.Errorf("expected capped value, got %q", got)
	}
	if got := TrimBounded("", 10); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
