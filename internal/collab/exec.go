package collab

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/imgforge/imgforge/internal/logs"
)

// runCommand executes a collaborator binary and returns its combined output.
// Output streams into a live tail box while it runs; it is also attached
// verbatim to errors so a failing build reports the collaborator's own
// message.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	logs.Debugf("exec: %s %s", name, strings.Join(args, " "))

	tail := logs.NewTailBox(name)
	defer tail.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	var out bytes.Buffer
	sink := io.MultiWriter(&out, tail)
	cmd.Stdout = sink
	cmd.Stderr = sink

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}

// classify maps a collaborator's output onto the sentinel taxonomy when the
// output carries a recognizable resolution failure.
func classify(err error, output string, markers []string, sentinel error) error {
	if err == nil {
		return nil
	}
	for _, marker := range markers {
		if strings.Contains(output, marker) {
			return fmt.Errorf("%w: %v", sentinel, err)
		}
	}
	return err
}
