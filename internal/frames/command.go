package frames

import (
	"context"
	"os/exec"
	"sync"
)

// CommandRunner runs an external program and returns its combined output.
// Decoding goes through this interface so extraction can be tested without
// ffmpeg installed.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner implements CommandRunner with os/exec. The process is killed
// when ctx is cancelled.
type ExecRunner struct{}

// Run executes name with args and returns stdout and stderr combined.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// RecordedCommand is one invocation seen by MockRunner.
type RecordedCommand struct {
	Name string
	Args []string
}

// MockRunner implements CommandRunner for tests.
type MockRunner struct {
	mu sync.Mutex
	// Commands records every invocation in order.
	Commands []RecordedCommand
	// Handler, when set, decides the result of each invocation.
	Handler func(name string, args []string) ([]byte, error)
}

// Run records the command and delegates to Handler.
func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, RecordedCommand{Name: name, Args: args})
	h := m.Handler
	m.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(name, args)
}

// LastCommand returns the most recent invocation, or nil if none.
func (m *MockRunner) LastCommand() *RecordedCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Commands) == 0 {
		return nil
	}
	return &m.Commands[len(m.Commands)-1]
}
