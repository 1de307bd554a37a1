package bridgelog

import "testing"

func TestLIsNeverNil(t *testing.T) {
	if L() == nil {
		t.Fatal("L() must never return nil")
	}
}

func TestSIsNeverNil(t *testing.T) {
	if S() == nil {
		t.Fatal("S() must never return nil")
	}
}

func TestErrWrapsError(t *testing.T) {
	f := Err(errBoom{})
	if f.Key != "error" {
		t.Fatalf("got key %q, want \"error\"", f.Key)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
