package utils

import "testing"

func TestContentHash(t *testing.T) {
	if ContentHash("ab", "c") == ContentHash("a", "bc") {
		t.Error("boundary shift must change the hash")
	}
	if got, want := ContentHash("x", "y"), ContentHash("x", "y"); got != want {
		t.Errorf("ContentHash not stable: %s != %s", got, want)
	}
	if len(ContentHash()) != 64 {
		t.Errorf("unexpected digest length %d", len(ContentHash()))
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"日本語テキスト", 3, "日本語"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
