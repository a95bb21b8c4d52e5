package room

import (
	"regexp"
	"testing"
)

var codePattern = regexp.MustCompile(`^[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{6}$`)

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		if !codePattern.MatchString(code) {
			t.Fatalf("Generated code %q does not match the room code format", code)
		}
	}
}

func TestGenerateCode_Varies(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode failed: %v", err)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 45 {
		t.Errorf("Expected mostly distinct codes, got %d unique out of 50", len(seen))
	}
}

func TestNormalizeCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{" ab cdef ", "ABCDEF"},
		{"abcdefgh", "ABCDEF"},
		{"a\tb\nc", "ABC"},
		{"", ""},
		{"ABCDEF", "ABCDEF"},
	}
	for _, tc := range cases {
		if got := NormalizeCode(tc.in); got != tc.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeCode_Idempotent(t *testing.T) {
	inputs := []string{" x y z 1 2 3 4 ", "qwertyuiop", "  ", "ab cd"}
	for _, in := range inputs {
		once := NormalizeCode(in)
		if twice := NormalizeCode(once); twice != once {
			t.Errorf("NormalizeCode not idempotent for %q: %q then %q", in, once, twice)
		}
		if len([]rune(once)) > CodeLength {
			t.Errorf("NormalizeCode(%q) longer than %d: %q", in, CodeLength, once)
		}
	}
}

func TestValidCode(t *testing.T) {
	if !ValidCode("ABCDEF") {
		t.Error("ABCDEF should be valid")
	}
	if ValidCode("ABC") {
		t.Error("ABC should be rejected")
	}
	if ValidCode(NormalizeCode("  ")) {
		t.Error("blank code should be rejected")
	}
}
