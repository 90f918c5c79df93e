package versions

import (
	"errors"
	"testing"
)

func TestParseConstraintDoubleEquals(t *testing.T) {
	t.Parallel()

	c, err := ParseConstraint("==1.2.3")
	if err != nil {
		t.Fatalf("ParseConstraint returned error: %v", err)
	}
	if !c.Check("1.2.3") {
		t.Fatal("1.2.3 should satisfy ==1.2.3")
	}
	if c.Check("1.2.4") {
		t.Fatal("1.2.4 should not satisfy ==1.2.3")
	}
}

func TestParseConstraintEmptyMatchesAll(t *testing.T) {
	t.Parallel()

	c, err := ParseConstraint("")
	if err != nil {
		t.Fatalf("ParseConstraint returned error: %v", err)
	}
	if !c.Check("0.0.1") {
		t.Fatal("empty constraint should match any version")
	}
}

func TestMaxSatisfying(t *testing.T) {
	t.Parallel()

	c, err := ParseConstraint(">=2.0")
	if err != nil {
		t.Fatalf("ParseConstraint returned error: %v", err)
	}

	got, err := c.MaxSatisfying([]string{"1.9.0", "2.0.0", "2.31.0", "3.0.0"})
	if err != nil {
		t.Fatalf("MaxSatisfying returned error: %v", err)
	}
	if got != "3.0.0" {
		t.Fatalf("MaxSatisfying = %q, want %q", got, "3.0.0")
	}
}

func TestMaxSatisfyingUnsatisfiable(t *testing.T) {
	t.Parallel()

	c, err := ParseConstraint(">=99.0")
	if err != nil {
		t.Fatalf("ParseConstraint returned error: %v", err)
	}

	if _, err := c.MaxSatisfying([]string{"1.0.0", "2.0.0"}); !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("expected ErrUnsatisfiable, got %v", err)
	}
}
