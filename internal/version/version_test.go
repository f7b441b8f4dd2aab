package version

import "testing"

func TestString(t *testing.T) {
	if got := String(); got != "apdbif dev (unknown, built unknown)" {
		t.Errorf("String() = %q", got)
	}
}
