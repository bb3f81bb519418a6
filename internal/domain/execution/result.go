package execution

import (
	"encoding/base64"
	"time"
)

// Status is the numeric status reported to clients.
type Status int

const (
	// StatusSuccess marks a run whose program exited with code 0.
	StatusSuccess Status = 3
	// StatusFailure marks any other outcome, infrastructure failures included.
	StatusFailure Status = 4
)

// Outcome is the stored, client-visible result of one task.
type Outcome struct {
	Stdout   *string `json:"stdout"`
	StatusID Status  `json:"statusId"`
	Stderr   *string `json:"stderr"`
}

// Succeeded reports whether the outcome carries the success status.
func (o Outcome) Succeeded() bool {
	return o.StatusID == StatusSuccess
}

// ErrorOutcome converts err into a failure outcome. Stdout is absent and
// stderr holds the error description, encoded when encode is set.
func ErrorOutcome(err error, encode bool) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	if encode {
		msg = base64.StdEncoding.EncodeToString([]byte(msg))
	}
	return Outcome{StatusID: StatusFailure, Stderr: &msg}
}

// RunState is a state of the container lifecycle state machine.
type RunState string

const (
	RunStateProvisioning RunState = "provisioning"
	RunStateStarted      RunState = "started"
	RunStateExecuting    RunState = "executing"
	RunStateSucceeded    RunState = "succeeded"
	RunStateFailed       RunState = "failed"
	RunStateTimedOut     RunState = "timed_out"
)

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	switch s {
	case RunStateSucceeded, RunStateFailed, RunStateTimedOut:
		return true
	default:
		return false
	}
}

// RunResult captures what the container lifecycle manager observed.
type RunResult struct {
	State    RunState
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Outcome translates the run result into a client outcome.
func (r RunResult) Outcome(encode bool) Outcome {
	status := StatusFailure
	if r.State == RunStateSucceeded {
		status = StatusSuccess
	}

	stdout := r.Stdout
	if encode {
		stdout = base64.StdEncoding.EncodeToString([]byte(stdout))
	}

	out := Outcome{Stdout: &stdout, StatusID: status}
	if r.Stderr != "" {
		stderr := r.Stderr
		if encode {
			stderr = base64.StdEncoding.EncodeToString([]byte(stderr))
		}
		out.Stderr = &stderr
	}
	return out
}
