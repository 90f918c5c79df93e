package imageref

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	ref, err := Parse("nvidia/cuda:12.4.1-base-ubuntu22.04")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if ref.Repository != "nvidia/cuda" || ref.Tag != "12.4.1-base-ubuntu22.04" {
		t.Fatalf("Parse = %+v", ref)
	}
}

func TestParseRegistryPort(t *testing.T) {
	t.Parallel()

	ref, err := Parse("registry.local:5000/team/base:22.04")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if ref.Repository != "registry.local:5000/team/base" || ref.Tag != "22.04" {
		t.Fatalf("Parse = %+v", ref)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "foo", "registry.local:5000/team/base", ":tag", "foo:", "foo:bad tag"} {
		if _, err := Parse(bad); !errors.Is(err, ErrResolution) {
			t.Fatalf("Parse(%q) = %v, want ErrResolution", bad, err)
		}
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	ref := Ref{Repository: "foo", Tag: "22.04"}
	if got := ref.String(); got != "foo:22.04" {
		t.Fatalf("String = %q", got)
	}
}
