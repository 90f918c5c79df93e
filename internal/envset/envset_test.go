package envset

import (
	"reflect"
	"testing"
)

func TestDeclareShadowing(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Declare("PATH", "/a"); err != nil {
		t.Fatalf("Declare returned error: %v", err)
	}
	if err := s.Declare("PATH", "/b"); err != nil {
		t.Fatalf("Declare returned error: %v", err)
	}

	got, ok := s.Get("PATH")
	if !ok || got != "/b" {
		t.Fatalf("Get(PATH) = %q, %v; want %q", got, ok, "/b")
	}
}

func TestDeclareEmptyKey(t *testing.T) {
	t.Parallel()

	s := New()
	if err := s.Declare("", "x"); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestEnvironOrderAndDedup(t *testing.T) {
	t.Parallel()

	s := New()
	s.Declare("A", "1")
	s.Declare("B", "2")
	s.Declare("A", "3")

	want := []string{"A=3", "B=2"}
	if got := s.Environ(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Environ = %v, want %v", got, want)
	}
}

func TestIdentityLinesKeepHistory(t *testing.T) {
	t.Parallel()

	s := New()
	s.Declare("A", "1")
	s.Declare("A", "2")

	want := []string{"A=1", "A=2"}
	if got := s.IdentityLines(); !reflect.DeepEqual(got, want) {
		t.Fatalf("IdentityLines = %v, want %v", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	t.Parallel()

	s := New()
	s.Declare("A", "1")

	cp := s.Clone()
	cp.Declare("A", "2")

	if got, _ := s.Get("A"); got != "1" {
		t.Fatalf("parent set mutated through clone: A=%q", got)
	}
	if got, _ := cp.Get("A"); got != "2" {
		t.Fatalf("clone missing declaration: A=%q", got)
	}
}
