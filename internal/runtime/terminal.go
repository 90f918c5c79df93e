package runtime

import (
	"os"
	"sync"

	"github.com/moby/term"
)

// TerminalGuard snapshots the terminal state before interactive prompts so
// an interrupted prompt never leaves the shell in a broken mode.
type TerminalGuard struct {
	mu    sync.Mutex
	inFd  uintptr
	saved *term.State
}

func NewTerminalGuard() *TerminalGuard {
	return &TerminalGuard{}
}

// Save records the current terminal state. No-op when stdin is not a TTY or
// a state is already held.
func (g *TerminalGuard) Save() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.saved != nil {
		return
	}

	inFd, isTerm := term.GetFdInfo(os.Stdin)
	if !isTerm {
		return
	}

	st, err := term.SaveState(inFd)
	if err != nil {
		return
	}

	g.inFd = inFd
	g.saved = st
}

// Restore resets the terminal to the saved state. Safe to call multiple
// times and without a prior Save.
func (g *TerminalGuard) Restore() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.saved != nil {
		_ = term.RestoreTerminal(g.inFd, g.saved)
		g.saved = nil
		g.inFd = 0
	}

	// Best effort: turn off common mouse tracking modes.
	// Ignore errors; it's just writing escape sequences.
	os.Stdout.Write([]byte("\x1b[?1000l")) // X10/normal mouse
	os.Stdout.Write([]byte("\x1b[?1002l")) // button event mouse
	os.Stdout.Write([]byte("\x1b[?1003l")) // any event mouse
	os.Stdout.Write([]byte("\x1b[?1006l")) // SGR mouse mode
}
