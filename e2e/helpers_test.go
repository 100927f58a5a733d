//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	buildOnce   sync.Once
	builtBinary string
	buildErr    error
)

// ftclientBinary builds the ftclient binary once and returns its path.
func ftclientBinary(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		// Find the repo root (parent of e2e/).
		dir, _ := os.Getwd()
		root := filepath.Dir(dir)
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err != nil {
			// Try current dir if we're running from root.
			root = dir
		}
		builtBinary = filepath.Join(root, "bin", "ftclient")
		cmd := exec.Command("go", "build", "-o", builtBinary, "./cmd/ftclient")
		cmd.Dir = root
		out, err := cmd.CombinedOutput()
		if err != nil {
			buildErr = fmt.Errorf("build: %w\n%s", err, out)
		}
	})
	if buildErr != nil {
		t.Fatalf("build ftclient: %v", buildErr)
	}
	return builtBinary
}

// result is the outcome of one ftclient run.
type result struct {
	code   int
	stdout string
	stderr string
}

// run executes ftclient in dir with stdin as input and waits for it to exit.
func run(t *testing.T, dir, stdin string, args ...string) result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ftclientBinary(t), args...)
	cmd.Dir = dir
	cmd.Env = cleanEnv()
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := result{stdout: stdout.String(), stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.code = exitErr.ExitCode()
	default:
		t.Fatalf("run ftclient: %v", err)
	}
	return res
}

// cleanEnv drops FTCLIENT_* variables so the developer's settings do not
// leak into tests.
func cleanEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "FTCLIENT_") {
			env = append(env, kv)
		}
	}
	return env
}

// ftclientProcess is a running ftclient with its stderr captured.
type ftclientProcess struct {
	cmd  *exec.Cmd
	logs *stderrLog

	exited chan struct{} // closed once cmd.Wait returns
}

// start launches ftclient without waiting for it. Tests can wait on the
// exit with wait, and the cleanup kills whatever is still running.
func start(t *testing.T, dir string, args ...string) *ftclientProcess {
	t.Helper()
	cmd := exec.Command(ftclientBinary(t), args...)
	cmd.Dir = dir
	cmd.Env = cleanEnv()
	cmd.Stdin = strings.NewReader("")
	cmd.Stdout = io.Discard
	logs := newStderrLog()
	cmd.Stderr = logs

	if err := cmd.Start(); err != nil {
		t.Fatalf("start ftclient: %v", err)
	}
	p := &ftclientProcess{cmd: cmd, logs: logs, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	t.Cleanup(func() {
		select {
		case <-p.exited:
			return
		default:
		}
		_ = cmd.Process.Kill()
		<-p.exited
	})
	return p
}

// wait blocks until the process exits or timeout elapses. It reports
// whether the process exited; any number of callers may wait.
func (p *ftclientProcess) wait(timeout time.Duration) bool {
	select {
	case <-p.exited:
		return true
	case <-time.After(timeout):
		return false
	}
}

// stderrLog collects a child's stderr and lets tests block until some
// text shows up in it.
type stderrLog struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	updated chan struct{} // replaced after every Write
}

func newStderrLog() *stderrLog {
	return &stderrLog{updated: make(chan struct{})}
}

func (l *stderrLog) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.buf.Write(p)
	close(l.updated)
	l.updated = make(chan struct{})
	return n, err
}

func (l *stderrLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// waitFor blocks until the captured output contains substr.
func (l *stderrLog) waitFor(substr string, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		l.mu.Lock()
		found := strings.Contains(l.buf.String(), substr)
		updated := l.updated
		l.mu.Unlock()
		if found {
			return true
		}
		select {
		case <-updated:
		case <-deadline:
			return false
		}
	}
}

// assertNoUsageDump checks that stderr doesn't contain cobra usage output.
func assertNoUsageDump(t *testing.T, output string) {
	t.Helper()
	if strings.Contains(output, "Usage:") && strings.Contains(output, "Flags:") {
		t.Error("stderr contains cobra usage dump; expected clean error only")
	}
}
