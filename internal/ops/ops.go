package ops

import (
	"bytes"
	"context"
	"log"
	"os/exec"
	"sync"

	"github.com/google/uuid"
)

// Event is the single completion notification emitted per background
// operation.
type Event struct {
	OperationID string `json:"operationId"`
	Success     bool   `json:"success"`
	Output      string `json:"output"`
}

type Notifier interface {
	Send(message string) error
}

// Runner executes one-off background commands. The caller gets an operation
// id back immediately; the command runs to completion (no cancellation is
// offered once started) and exactly one Event is pushed per operation.
type Runner struct {
	events   chan Event
	notifier Notifier
	wg       sync.WaitGroup
}

func NewRunner(notifier Notifier) *Runner {
	return &Runner{
		events:   make(chan Event, 16),
		notifier: notifier,
	}
}

// Events is the push channel carrying completion notifications.
func (r *Runner) Events() <-chan Event {
	return r.events
}

// Spawn starts name with args in the background and returns the operation id.
func (r *Runner) Spawn(name string, args ...string) string {
	id := uuid.NewString()
	log.Printf("Operation %s started: %s", id, name)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		output, err := exec.Command(name, args...).CombinedOutput()
		ev := Event{
			OperationID: id,
			Success:     err == nil,
			Output:      string(output),
		}
		if err != nil {
			log.Printf("Operation %s failed: %v", id, err)
		} else {
			log.Printf("Operation %s completed", id)
		}
		r.events <- ev

		if r.notifier != nil {
			status := "completed"
			if !ev.Success {
				status = "failed"
			}
			if err := r.notifier.Send("Operation " + id + " " + status); err != nil {
				log.Printf("Failed to send telegram notification: %v", err)
			}
		}
	}()

	return id
}

// Wait blocks until every spawned operation has completed.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// ExecResult carries the outcome of a synchronous command invocation.
type ExecResult struct {
	Success bool
	Stdout  string
	Stderr  string
}

// Exec runs a command synchronously and captures exit status and both
// streams. A nonzero exit is a result, not an error.
func Exec(ctx context.Context, name string, args ...string) ExecResult {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return ExecResult{
		Success: err == nil,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
}
