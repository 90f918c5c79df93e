// Package runtime owns the process lifecycle of one imgforge invocation:
// the global context, the build ID, background goroutines, shutdown hooks,
// and final cleanup.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	appconfig "github.com/imgforge/imgforge/internal/apps/imgforge/config"
	"github.com/imgforge/imgforge/internal/logs"
	"github.com/imgforge/imgforge/internal/ui"
)

type Runtime struct {
	buildID string

	ctx        context.Context    // global context
	cancelFunc context.CancelFunc // cancelFunc of global context

	mu sync.Mutex

	wg              sync.WaitGroup
	shutdownTimeout time.Duration

	term *TerminalGuard

	firstFailErr error

	logWriter io.Writer
}

func (rt *Runtime) CancelCtx() {
	rt.cancelFunc()
}

func (rt *Runtime) Ctx() context.Context {
	return rt.ctx
}

func (rt *Runtime) BuildID() string {
	return rt.buildID
}

func (rt *Runtime) Term() *TerminalGuard {
	return rt.term
}

func (rt *Runtime) LogWriter() io.Writer {
	return rt.logWriter
}

type runtimeKey struct{}

func NewHostRuntime() *Runtime {
	baseCtx, cancel := context.WithCancel(context.Background())
	buildID := strconv.FormatInt(time.Now().Unix(), 10)
	rt := &Runtime{
		buildID:         buildID,
		cancelFunc:      cancel,
		term:            NewTerminalGuard(),
		shutdownTimeout: 5 * time.Second,
	}
	// Context-as-DI for exactly ONE pointer: the Runtime. Each command
	// handler loads it once at its root via FromContext and passes it down
	// explicitly from there; nothing below the cmd layer reads it from the
	// context again.
	ctx := context.WithValue(baseCtx, runtimeKey{}, rt)
	rt.ctx = ctx
	return rt
}

func FromContext(ctx context.Context) *Runtime {
	v := ctx.Value(runtimeKey{})
	if v == nil {
		return nil
	}
	rt, _ := v.(*Runtime)
	return rt
}

func FromContextOrPanic(ctx context.Context) *Runtime {
	rt := FromContext(ctx)
	if rt == nil {
		panic(errors.New("runtime not found in this context"))
	}
	return rt
}

// OpenBuildLog routes the full log to the build's log file, sync-flushed so
// a tail -f on the file stays current while the build runs.
func (rt *Runtime) OpenBuildLog() {
	logPath := appconfig.BuildLogPath(rt.buildID)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		logs.Warnf("can't create log directory: %v", err)
		return
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		logs.Warnf("can't open log file: %v", err)
		return
	}

	syncWriter := ui.NewSyncWriter(f, 200*time.Millisecond)
	timestampWriter := ui.NewTimestampWriter(syncWriter)
	rt.logWriter = timestampWriter
	logs.SetFullLogWriter(timestampWriter)
}

// GoNamed runs fn in a new goroutine with panic recovery. A panic is
// recorded as the first failure and cancels the global context; Wait
// returns it.
func (rt *Runtime) GoNamed(name string, fn func()) {
	if name == "" {
		name = "anonymous"
	}
	rt.wg.Go(func() {
		logs.Debugf("%s goroutine start", name)
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v\n%s", r, debug.Stack())
				rt.mu.Lock()
				if rt.firstFailErr == nil {
					rt.firstFailErr = err
					rt.cancelFunc()
				}
				rt.mu.Unlock()
			}
		}()

		fn()
		logs.Debugf("%s goroutine finish", name)
	})
}

func (rt *Runtime) Wait() error {
	rt.wg.Wait()

	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.firstFailErr
}

func (rt *Runtime) OnShutdown(fn func(ctx context.Context)) {
	rt.GoNamed("OnShutdown", func() {
		<-rt.ctx.Done()

		cleanupCtx, cancel := context.WithTimeout(context.Background(), rt.shutdownTimeout)
		defer cancel()

		fn(cleanupCtx)
	})
}

// Finalize handles both panic and normal exit.
// Call it in a defer at the top of main.
func (rt *Runtime) Finalize(appName, helpHint string, execErr *error) {
	if r := recover(); r != nil {
		if rt.term != nil {
			rt.term.Restore()
		}

		fmt.Fprintf(os.Stderr, "%s panic: %v\n", appName, r)
		fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
		fmt.Fprintln(os.Stderr, "")
		if helpHint != "" {
			fmt.Fprintln(os.Stderr, helpHint)
		}

		// cancel & wait so OnShutdown hooks run
		rt.CancelCtx()
		_ = rt.Wait()

		logs.Close()
		os.Exit(1)
	}

	if rt.term != nil {
		rt.term.Restore()
	}

	rt.CancelCtx()
	waitErr := rt.Wait()

	if execErr != nil && *execErr != nil {
		logs.Errorf("%s error: %v", appName, *execErr)
		if helpHint != "" {
			fmt.Fprintln(os.Stderr, helpHint)
		}
	} else if waitErr != nil {
		logs.Errorf("%s fail reason: %v", appName, waitErr)
	}

	logs.Close()
}
