/*
 * Copyright 2024-2026 Terravista
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package job submits long-running geoprocessing jobs and polls them to a
// terminal state. The asynchronicity is entirely server-side; a Run blocks
// the calling goroutine between fixed-interval status polls.
package job

import (
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/terravista/portal-go/internal/client"
	"github.com/terravista/portal-go/internal/debug"
	"golang.org/x/sync/errgroup"
)

// State of a server-side job, drawn from the protocol's fixed vocabulary.
type State string

const (
	StateSubmitted State = "esriJobSubmitted"
	StateExecuting State = "esriJobExecuting"
	StateRunning   State = "esriJobRunning"
	StateWaiting   State = "esriJobWaiting"
	StateSucceeded State = "esriJobSucceeded"
	StateFailed    State = "esriJobFailed"
	StateCancelled State = "esriJobCancelled"
	StateTimedOut  State = "esriJobTimedOut"

	// some servers spell the cancelled terminal with a single l
	stateCanceledVariant State = "esriJobCanceled"
)

// Terminal reports whether no transition leaves this state.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, stateCanceledVariant, StateTimedOut:
		return true
	}
	return false
}

// Message is one server-side log line of a job. The message stream is
// ordered and append-only.
type Message struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Result of a succeeded job: the ordered log and the named result values,
// pointer results already resolved.
type Result struct {
	ID       string
	Messages []Message
	Values   map[string]json.RawMessage
}

// NoJobIDError means the submission reply carried no job identifier; the job
// never started, as opposed to having run and failed.
type NoJobIDError struct {
	Task string
}

func (e *NoJobIDError) Error() string {
	return "job submission to " + e.Task + " returned no job id"
}

// FailedError is a job that ran and reached the failed terminal state.
type FailedError struct {
	ID       string
	State    State
	Messages []Message
}

func (e *FailedError) Error() string {
	text := "job " + e.ID + " terminated as " + string(e.State)
	for _, message := range e.Messages {
		if message.Type == "esriJobMessageTypeError" {
			text += ": " + message.Description
			break
		}
	}
	return text
}

// CancelledError is a job cancelled before completion.
type CancelledError struct {
	ID string
}

func (e *CancelledError) Error() string {
	return "job " + e.ID + " was cancelled"
}

// TimedOutError is a job that exceeded its server-side time limit.
type TimedOutError struct {
	ID string
}

func (e *TimedOutError) Error() string {
	return "job " + e.ID + " timed out on the server"
}

// statusReply is a submit or poll response.
type statusReply struct {
	JobID    string               `json:"jobId"`
	Status   State                `json:"jobStatus"`
	Messages []Message            `json:"messages"`
	Results  map[string]resultRef `json:"results"`
}

// resultRef is one named result: either inline or a pointer to a
// sub-resource that must be fetched separately.
type resultRef struct {
	ParamURL string          `json:"paramUrl"`
	Value    json.RawMessage `json:"value"`
}

// Poller runs jobs against one connection. The poll interval is a tuning
// knob, not a correctness property; the default suits interactive use.
type Poller struct {
	Conn     *client.Connection
	Interval time.Duration

	// Sink receives each new log message exactly once, in order, as polls
	// reveal them. Optional.
	Sink func(Message)
}

const defaultInterval = 2 * time.Second

// Run submits the job described by params to taskURL and blocks until the
// server reports a terminal state. Network failures during polling propagate
// untouched; a caller wanting resilience over a long poll wraps Run itself.
func (p *Poller) Run(taskURL string, params url.Values) (*Result, error) {
	raw, err := p.Conn.Post(taskURL+"/submitJob", params)
	if err != nil {
		return nil, err
	}
	var submitted statusReply
	if err := json.Unmarshal(raw, &submitted); err != nil {
		return nil, err
	}
	if submitted.JobID == "" {
		return nil, &NoJobIDError{Task: taskURL}
	}
	debug.Logger.Printf("job %s submitted, status %s", submitted.JobID, submitted.Status)

	jobURL := taskURL + "/jobs/" + submitted.JobID
	status := submitted
	seen := p.emit(submitted.Messages, 0)
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	for !status.Status.Terminal() {
		time.Sleep(interval)
		raw, err := p.Conn.Get(jobURL, nil)
		if err != nil {
			return nil, err
		}
		status = statusReply{}
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, err
		}
		seen = p.emit(status.Messages, seen)
	}

	switch status.Status {
	case StateSucceeded:
		return p.extract(taskURL, jobURL, submitted.JobID, &status)
	case StateCancelled, stateCanceledVariant:
		return nil, &CancelledError{ID: submitted.JobID}
	case StateTimedOut:
		return nil, &TimedOutError{ID: submitted.JobID}
	default:
		return nil, &FailedError{ID: submitted.JobID, State: status.Status, Messages: status.Messages}
	}
}

// emit surfaces the newly appended suffix of the message log, tracked by
// count, so every message reaches the sink exactly once.
func (p *Poller) emit(messages []Message, seen int) int {
	if len(messages) <= seen {
		return seen
	}
	for _, message := range messages[seen:] {
		if p.Sink != nil {
			p.Sink(message)
		}
		debug.Logger.Printf("job message [%s] %s", message.Type, message.Description)
	}
	return len(messages)
}

// resolveParam resolves a result pointer. Pointers are relative to the job
// resource unless they already spell a jobs/ path, which some servers emit
// relative to the task instead.
func resolveParam(taskURL, jobURL, param string) string {
	if strings.HasPrefix(param, "http://") || strings.HasPrefix(param, "https://") {
		return param
	}
	if strings.HasPrefix(param, "jobs/") {
		return taskURL + "/" + param
	}
	return jobURL + "/" + param
}

// extract gathers the named results of a succeeded job. Pointer results are
// independent of each other, so their fetches fan out concurrently.
func (p *Poller) extract(taskURL, jobURL, jobID string, status *statusReply) (*Result, error) {
	result := &Result{
		ID:       jobID,
		Messages: status.Messages,
		Values:   make(map[string]json.RawMessage, len(status.Results)),
	}
	// inline values are assigned before any fetch goroutine starts, so the
	// mutex below only needs to cover the fetched writes
	for name, ref := range status.Results {
		if ref.ParamURL == "" {
			result.Values[name] = ref.Value
		}
	}
	var mu sync.Mutex
	var group errgroup.Group
	for name, ref := range status.Results {
		name, ref := name, ref
		if ref.ParamURL == "" {
			continue
		}
		group.Go(func() error {
			raw, err := p.Conn.Get(resolveParam(taskURL, jobURL, ref.ParamURL), nil)
			if err != nil {
				return err
			}
			value := raw
			var fetched resultRef
			if err := json.Unmarshal(raw, &fetched); err == nil && fetched.Value != nil {
				value = fetched.Value
			}
			mu.Lock()
			result.Values[name] = value
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
