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

package portal

import (
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/terravista/portal-go/internal/client"
	"github.com/terravista/portal-go/internal/debug"
	"github.com/terravista/portal-go/internal/job"
	"github.com/terravista/portal-go/internal/profile"
	"github.com/terravista/portal-go/internal/token"
	"github.com/terravista/portal-go/internal/transport"
)

// File is an attachment added to an upload call.
type File = transport.File

// JobMessage is one log line of a running geoprocessing job.
type JobMessage = job.Message

// JobResult carries the named results and the full log of a succeeded job.
type JobResult = job.Result

// Profile holds connection parameters persisted under a profile name.
type Profile = profile.Profile

// ProfileStore reads and writes the on-disk profile file.
type ProfileStore = profile.Store

// Portal is an authenticated connection to one GIS portal or server. It is
// not safe for concurrent use by multiple goroutines.
type Portal struct {
	conn       *client.Connection
	transport  *transport.Transport
	referer    string
	expiration time.Duration
	interval   time.Duration
}

// Root returns the REST root this connection talks to.
func (p *Portal) Root() string {
	return p.conn.Root()
}

// Get performs a JSON GET against a resource path relative to the root.
func (p *Portal) Get(path string, params url.Values) (json.RawMessage, error) {
	return p.conn.Get(path, params)
}

// Post performs a JSON POST. Attachments turn the request into a multipart
// upload, streamed one file at a time.
func (p *Portal) Post(path string, params url.Values, files ...File) (json.RawMessage, error) {
	return p.conn.Post(path, params, files...)
}

// Download streams a binary resource into dir and returns the path of the
// written file, named by the server's content-disposition when present.
func (p *Portal) Download(path string, params url.Values, dir string) (string, error) {
	return p.conn.Download(path, params, dir)
}

// Properties reads the portal's self-describing resource.
func (p *Portal) Properties() (json.RawMessage, error) {
	return p.conn.Get("portals/self", nil)
}

// Token returns the live token, logging in on first use. Anonymous and
// certificate connections return the empty string.
func (p *Portal) Token() (string, error) {
	return p.conn.Tokens().Token()
}

// RefreshToken returns the OAuth refresh token currently held, so callers
// can persist it for the next session.
func (p *Portal) RefreshToken() string {
	return p.conn.Tokens().RefreshToken()
}

// Logout invalidates the token. No socket is closed; the transport is
// stateless per call.
func (p *Portal) Logout() {
	p.conn.Tokens().Logout()
}

// RunJob submits a geoprocessing job to the task at taskURL and blocks until
// the server reports a terminal state. Each new server log message is handed
// to sink exactly once, in order. The call blocks for the job's entire
// duration; wrap it if an overall timeout is wanted.
func (p *Portal) RunJob(taskURL string, params url.Values, sink func(JobMessage)) (*JobResult, error) {
	poller := &job.Poller{Conn: p.conn, Interval: p.interval, Sink: sink}
	return poller.Run(taskURL, params)
}

// Federate opens a connection to a server that trusts this portal as its
// identity provider. Tokens for the server are obtained by exchanging this
// portal's token, renewed through the same parent on expiry.
func (p *Portal) Federate(serverURL string) (*Portal, error) {
	root, err := normalizeRoot(serverURL, true)
	if err != nil {
		return nil, err
	}
	tokens := token.NewManager(p.transport, token.Config{
		Root:       root,
		Server:     true,
		Referer:    p.referer,
		Expiration: p.expiration,
		Parent:     p.conn.Tokens(),
	})
	return &Portal{
		conn:       client.New(p.transport, tokens),
		transport:  p.transport,
		referer:    p.referer,
		expiration: p.expiration,
		interval:   p.interval,
	}, nil
}

// SetDebugLogger routes the SDK's debug output, including full HTTP round
// trip dumps, to the given logger. Debug output is discarded by default.
func SetDebugLogger(logger *log.Logger) {
	debug.Logger = logger
}
