package command

import (
	"context"
	"strings"
	"sync"
)

// Fake is an Executor for tests. RunFunc decides the outcome of each call;
// every call is recorded.
type Fake struct {
	RunFunc func(ctx context.Context, spec Spec) ([]byte, error)

	mu    sync.Mutex
	calls []Spec
}

// Run records spec and delegates to RunFunc.
func (f *Fake) Run(ctx context.Context, spec Spec) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()
	if f.RunFunc == nil {
		return nil, nil
	}
	return f.RunFunc(ctx, spec)
}

// Calls returns the recorded invocations.
func (f *Fake) Calls() []Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Spec(nil), f.calls...)
}

// CommandLines renders recorded invocations as "name arg1 arg2".
func (f *Fake) CommandLines() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, strings.TrimSpace(c.Name+" "+strings.Join(c.Args, " ")))
	}
	return out
}
