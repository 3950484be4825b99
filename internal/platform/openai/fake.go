package openai

import (
	"context"
	"fmt"
	"sync"
)

// FakeCall records one Complete invocation on a Fake.
type FakeCall struct {
	Task   string
	Prompt string
	Opts   CompletionOptions
}

// Fake is a scripted Client for tests. Responders are looked up by task; a
// responder may inspect the prompt and the call index for that task.
type Fake struct {
	mu         sync.Mutex
	responders map[string]func(prompt string, n int) (string, error)
	calls      []FakeCall
	perTask    map[string]int
	// Before runs ahead of every Complete, outside the lock. Tests use it to
	// cancel a context mid-run.
	Before func(task string)
	Dim    int
}

func NewFake() *Fake {
	return &Fake{
		responders: map[string]func(string, int) (string, error){},
		perTask:    map[string]int{},
		Dim:        8,
	}
}

// On scripts a fixed response for every call of task.
func (f *Fake) On(task, response string) *Fake {
	return f.OnFunc(task, func(string, int) (string, error) { return response, nil })
}

// OnFunc scripts a response computed from the prompt and the zero-based call
// index for task.
func (f *Fake) OnFunc(task string, fn func(prompt string, n int) (string, error)) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responders[task] = fn
	return f
}

func (f *Fake) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	if f.Before != nil {
		f.Before(opts.Task)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Task: opts.Task, Prompt: prompt, Opts: opts})
	n := f.perTask[opts.Task]
	f.perTask[opts.Task] = n + 1
	fn, ok := f.responders[opts.Task]
	f.mu.Unlock()
	if !ok {
		if out, ok := dryRunResponses[opts.Task]; ok {
			return out, nil
		}
		return "", fmt.Errorf("fake: no response scripted for task %q", opts.Task)
	}
	return fn(prompt, n)
}

func (f *Fake) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(inputs))
	for i, s := range inputs {
		out[i] = hashVector(s, f.Dim)
	}
	return out, nil
}

// Calls returns a copy of the recorded calls in order.
func (f *Fake) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount is the number of Complete calls for task.
func (f *Fake) CallCount(task string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perTask[task]
}
