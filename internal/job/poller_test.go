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

package job

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/terravista/portal-go/internal/client"
	"github.com/terravista/portal-go/internal/token"
	"github.com/terravista/portal-go/internal/transport"
)

// newTestPoller wires an anonymous connection and a fast poller against mux.
func newTestPoller(t *testing.T, mux *http.ServeMux) *Poller {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tr := transport.New(transport.Options{})
	tokens := token.NewManager(tr, token.Config{Root: server.URL})
	return &Poller{Conn: client.New(tr, tokens), Interval: time.Millisecond}
}

func TestRun_PollsToSuccess(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/tools/buffer/submitJob", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobId":"J1","jobStatus":"esriJobSubmitted"}`)
	})
	mux.HandleFunc("/tools/buffer/jobs/J1", func(w http.ResponseWriter, r *http.Request) {
		polls++
		switch polls {
		case 1, 2:
			fmt.Fprint(w, `{"jobId":"J1","jobStatus":"esriJobExecuting","messages":[]}`)
		default:
			fmt.Fprint(w, `{"jobId":"J1","jobStatus":"esriJobSucceeded","messages":[],`+
				`"results":{"inline":{"value":42},"out":{"paramUrl":"results/out"}}}`)
		}
	})
	mux.HandleFunc("/tools/buffer/jobs/J1/results/out", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"paramName":"out","dataType":"GPString","value":"buffered"}`)
	})
	poller := newTestPoller(t, mux)

	result, err := poller.Run("tools/buffer", nil)
	if err != nil {
		t.Fatal(err)
	}
	if polls != 3 {
		t.Errorf("status polled %d times, want exactly 3", polls)
	}
	if result.ID != "J1" {
		t.Errorf("result ID = %q, want J1", result.ID)
	}
	if string(result.Values["inline"]) != `42` {
		t.Errorf("inline value = %s, want 42", result.Values["inline"])
	}
	if string(result.Values["out"]) != `"buffered"` {
		t.Errorf("pointer value = %s, want \"buffered\"", result.Values["out"])
	}
}

func TestRun_TerminalStatesMapToDistinctErrors(t *testing.T) {
	tests := []struct {
		name   string
		status string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "failed",
			status: "esriJobFailed",
			check: func(t *testing.T, err error) {
				var failed *FailedError
				if !errors.As(err, &failed) {
					t.Fatalf("error %T is not a *FailedError", err)
				}
				if failed.State != StateFailed {
					t.Errorf("terminal state %q, want esriJobFailed", failed.State)
				}
			},
		},
		{
			name:   "cancelled",
			status: "esriJobCancelled",
			check: func(t *testing.T, err error) {
				var cancelled *CancelledError
				if !errors.As(err, &cancelled) {
					t.Fatalf("error %T is not a *CancelledError", err)
				}
			},
		},
		{
			name:   "canceled-variant",
			status: "esriJobCanceled",
			check: func(t *testing.T, err error) {
				var cancelled *CancelledError
				if !errors.As(err, &cancelled) {
					t.Fatalf("error %T is not a *CancelledError", err)
				}
			},
		},
		{
			name:   "timed-out",
			status: "esriJobTimedOut",
			check: func(t *testing.T, err error) {
				var timedOut *TimedOutError
				if !errors.As(err, &timedOut) {
					t.Fatalf("error %T is not a *TimedOutError", err)
				}
			},
		},
	}
	for _, subtest := range tests {
		t.Run(subtest.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/tool/submitJob", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"jobId":"J2","jobStatus":"esriJobSubmitted"}`)
			})
			mux.HandleFunc("/tool/jobs/J2", func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"jobId":"J2","jobStatus":"%s","messages":[{"type":"esriJobMessageTypeError","description":"boom"}]}`, subtest.status)
			})
			poller := newTestPoller(t, mux)

			_, err := poller.Run("tool", nil)
			if err == nil {
				t.Fatal("expected a terminal error")
			}
			subtest.check(t, err)
		})
	}
}

func TestRun_MissingJobID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/tool/submitJob", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobStatus":"esriJobSubmitted"}`)
	})
	poller := newTestPoller(t, mux)

	_, err := poller.Run("tool", nil)
	var noID *NoJobIDError
	if !errors.As(err, &noID) {
		t.Fatalf("error %T is not a *NoJobIDError", err)
	}
}

func TestRun_MessagesSurfacedOnceInOrder(t *testing.T) {
	polls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/tool/submitJob", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobId":"J3","jobStatus":"esriJobSubmitted"}`)
	})
	mux.HandleFunc("/tool/jobs/J3", func(w http.ResponseWriter, r *http.Request) {
		polls++
		switch polls {
		case 1:
			fmt.Fprint(w, `{"jobId":"J3","jobStatus":"esriJobExecuting","messages":[`+
				`{"type":"esriJobMessageTypeInformative","description":"a"},`+
				`{"type":"esriJobMessageTypeInformative","description":"b"}]}`)
		default:
			// the previous messages are repeated with one appended
			fmt.Fprint(w, `{"jobId":"J3","jobStatus":"esriJobSucceeded","messages":[`+
				`{"type":"esriJobMessageTypeInformative","description":"a"},`+
				`{"type":"esriJobMessageTypeInformative","description":"b"},`+
				`{"type":"esriJobMessageTypeWarning","description":"c"}]}`)
		}
	})
	poller := newTestPoller(t, mux)

	var surfaced []string
	poller.Sink = func(message Message) {
		surfaced = append(surfaced, message.Description)
	}
	if _, err := poller.Run("tool", nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, surfaced); diff != "" {
		t.Errorf("message stream mismatch (-want +got):\n%s", diff)
	}
}

// The two-poll scenario: running, then succeeded with a jobs/-prefixed
// result pointer that takes one further call to resolve.
func TestRun_PointerResultFetched(t *testing.T) {
	polls, fetches := 0, 0
	mux := http.NewServeMux()
	mux.HandleFunc("/tool/submitJob", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobId":"123"}`)
	})
	mux.HandleFunc("/tool/jobs/123", func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls == 1 {
			fmt.Fprint(w, `{"jobStatus":"esriJobRunning","messages":[]}`)
			return
		}
		fmt.Fprint(w, `{"jobStatus":"esriJobSucceeded","results":{"out":{"paramUrl":"jobs/123/out"}}}`)
	})
	mux.HandleFunc("/tool/jobs/123/out", func(w http.ResponseWriter, r *http.Request) {
		fetches++
		fmt.Fprint(w, `{"value":"fetched"}`)
	})
	poller := newTestPoller(t, mux)

	result, err := poller.Run("tool", nil)
	if err != nil {
		t.Fatal(err)
	}
	if polls != 2 {
		t.Errorf("status polled %d times, want 2", polls)
	}
	if fetches != 1 {
		t.Errorf("pointer fetched %d times, want exactly 1", fetches)
	}
	if string(result.Values["out"]) != `"fetched"` {
		t.Errorf("result out = %s, want \"fetched\"", result.Values["out"])
	}
}

// A succeeded job routinely mixes inline values with pointer results; the
// inline assignments and the concurrent pointer fetches must not collide.
func TestRun_MixedInlineAndPointerResults(t *testing.T) {
	const pairs = 8
	results := make([]string, 0, 2*pairs)
	for i := 0; i < pairs; i++ {
		results = append(results,
			fmt.Sprintf(`"inline%d":{"value":%d}`, i, i),
			fmt.Sprintf(`"pointer%d":{"paramUrl":"results/pointer%d"}`, i, i))
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/tool/submitJob", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jobId":"J4","jobStatus":"esriJobSubmitted"}`)
	})
	mux.HandleFunc("/tool/jobs/J4", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"jobId":"J4","jobStatus":"esriJobSucceeded","results":{%s}}`,
			strings.Join(results, ","))
	})
	mux.HandleFunc("/tool/jobs/J4/results/", func(w http.ResponseWriter, r *http.Request) {
		name := path.Base(r.URL.Path)
		fmt.Fprintf(w, `{"paramName":%q,"value":%q}`, name, "fetched-"+name)
	})
	poller := newTestPoller(t, mux)

	result, err := poller.Run("tool", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Values) != 2*pairs {
		t.Fatalf("got %d result values, want %d", len(result.Values), 2*pairs)
	}
	for i := 0; i < pairs; i++ {
		inline := fmt.Sprintf("inline%d", i)
		if string(result.Values[inline]) != fmt.Sprintf("%d", i) {
			t.Errorf("%s = %s, want %d", inline, result.Values[inline], i)
		}
		pointer := fmt.Sprintf("pointer%d", i)
		if want := fmt.Sprintf("%q", "fetched-pointer"+fmt.Sprint(i)); string(result.Values[pointer]) != want {
			t.Errorf("%s = %s, want %s", pointer, result.Values[pointer], want)
		}
	}
}

func TestState_Terminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateSubmitted, false},
		{StateExecuting, false},
		{StateRunning, false},
		{StateWaiting, false},
		{StateSucceeded, true},
		{StateFailed, true},
		{StateCancelled, true},
		{StateTimedOut, true},
	}
	for _, subtest := range tests {
		if got := subtest.state.Terminal(); got != subtest.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", subtest.state, got, subtest.terminal)
		}
	}
}
