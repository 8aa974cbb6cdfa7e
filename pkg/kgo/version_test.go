package kgo

import "testing"

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if v != (Version{1, 2, 3}) {
		t.Errorf("ParseVersion = %+v, want {1 2 3}", v)
	}
}

func TestParseVersionRejectsMalformed(t *testing.T) {
	for _, s := range []string{"1.2", "1.2.3.4", "a.b.c", "-1.0.0", ""} {
		if _, err := ParseVersion(s); err == nil {
			t.Errorf("ParseVersion(%q) should have failed", s)
		}
	}
}

func TestVersionCompareAndAtLeast(t *testing.T) {
	tests := []struct {
		a, b    string
		cmp     int
		atLeast bool
	}{
		{"1.0.0", "1.0.0", 0, true},
		{"1.2.0", "1.1.9", 1, true},
		{"0.9.0", "0.9.1", -1, false},
		{"2.0.0", "1.9.9", 1, true},
	}
	for _, tt := range tests {
		a, err := ParseVersion(tt.a)
		if err != nil {
			t.Fatal(err)
		}
		b, err := ParseVersion(tt.b)
		if err != nil {
			t.Fatal(err)
		}
		if got := a.Compare(b); got != tt.cmp {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.a, tt.b, got, tt.cmp)
		}
		if got := a.AtLeast(b); got != tt.atLeast {
			t.Errorf("%s.AtLeast(%s) = %v, want %v", tt.a, tt.b, got, tt.atLeast)
		}
	}
}

func TestVersionString(t *testing.T) {
	v := Version{1, 2, 3}
	if got := v.String(); got != "1.2.3" {
		t.Errorf("String() = %q, want 1.2.3", got)
	}
}
