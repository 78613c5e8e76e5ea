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

// Package client orchestrates calls against the GIS service: it attaches the
// live token to each request, reads the JSON error envelope of the reply, and
// transparently retries a call exactly once after refreshing an expired
// token. Every other failure is surfaced typed and untouched.
package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/terravista/portal-go/internal/debug"
	"github.com/terravista/portal-go/internal/token"
	"github.com/terravista/portal-go/internal/transport"
)

// Error codes fixed by the service protocol.
const (
	// codeInvalidToken is the envelope code meaning the token expired
	// during the call. It is the sole condition retried automatically.
	codeInvalidToken = 498
	// codeTokenRequired means the call needed a token and none was sent;
	// the lazy first-login path produces it and it refreshes the same way.
	codeTokenRequired = 499

	formatKey  = "f"
	formatJSON = "json"
	tokenKey   = "token"
)

// ServiceError is a structured error envelope returned by the service for a
// non-token-expiry code. The server's message and code are preserved
// verbatim. Never retried automatically.
type ServiceError struct {
	Code    int
	Message string
	Details []string
}

func (e *ServiceError) Error() string {
	text := fmt.Sprintf("service error (code %d): %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		text += "; " + strings.Join(e.Details, "; ")
	}
	return text
}

// InvalidTokenError means the token was expired and refreshing it did not
// help: either the refresh itself failed, or the service rejected the
// refreshed token immediately. Fatal.
type InvalidTokenError struct {
	Message string
}

func (e *InvalidTokenError) Error() string {
	if e.Message != "" {
		return "invalid token: " + e.Message
	}
	return "invalid token"
}

// errorEnvelope is the shape of a JSON error reply.
type errorEnvelope struct {
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// Connection is one authenticated session to one service root. Requests are
// stateless per call; the session lives in the token manager. The job poller
// fans result fetches out over one Connection, so the probe state is guarded.
type Connection struct {
	transport *transport.Transport
	tokens    *token.Manager

	mu           sync.Mutex
	schemeProbed bool
	schemeErr    error
}

// New creates a Connection around the given transport and token manager.
func New(tr *transport.Transport, tokens *token.Manager) *Connection {
	return &Connection{transport: tr, tokens: tokens}
}

// Tokens exposes the token manager of this connection.
func (c *Connection) Tokens() *token.Manager {
	return c.tokens
}

// Root returns the service REST root this connection talks to.
func (c *Connection) Root() string {
	return c.tokens.Root()
}

// Resolve turns a relative resource path into an absolute URL under the
// service root. Absolute URLs pass through unchanged.
func (c *Connection) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimSuffix(c.Root(), "/") + "/" + strings.TrimPrefix(path, "/")
}

// Call performs a JSON request against the service and returns the raw JSON
// payload. The live token is attached unless the caller put one in the
// parameters already. Attachments switch the request to a multipart upload.
func (c *Connection) Call(method, path string, params url.Values, files ...transport.File) (json.RawMessage, error) {
	if params == nil {
		params = url.Values{}
	}
	if params.Get(formatKey) == "" {
		params.Set(formatKey, formatJSON)
	}
	response, err := c.exchange(&transport.Request{
		Method: method,
		URL:    c.Resolve(path),
		Params: params,
		Files:  files,
	})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(response.Body), nil
}

// Get is a convenience for JSON GET calls.
func (c *Connection) Get(path string, params url.Values) (json.RawMessage, error) {
	return c.Call(http.MethodGet, path, params)
}

// Post is a convenience for JSON POST calls. Mutating calls are never
// resubmitted beyond the single token-refresh retry; a repeated submission
// could duplicate the server-side effect.
func (c *Connection) Post(path string, params url.Values, files ...transport.File) (json.RawMessage, error) {
	return c.Call(http.MethodPost, path, params, files...)
}

// Download fetches a binary resource, streaming it into dir, and returns the
// path of the written file. A JSON reply in place of the expected blob is
// decoded as an error envelope the same way Call does.
func (c *Connection) Download(path string, params url.Values, dir string) (string, error) {
	if params == nil {
		params = url.Values{}
	}
	response, err := c.exchange(&transport.Request{
		Method: http.MethodGet,
		URL:    c.Resolve(path),
		Params: params,
		OutDir: dir,
	})
	if err != nil {
		return "", err
	}
	if !response.IsFile {
		return "", &transport.Error{
			Status: response.Status,
			Header: response.Header,
			Err:    fmt.Errorf("expected a file payload, got %q", response.Header.Get("Content-Type")),
		}
	}
	return response.Path, nil
}

// exchange sends the request, refreshing the token and retrying exactly once
// when the service reports the token expired. A 401 challenge triggers a
// one-time HTTP scheme discovery which does not count as a retry.
func (c *Connection) exchange(request *transport.Request) (*transport.Response, error) {
	callerToken := request.Params.Get(tokenKey) != ""
	tokenRetries := 0
	challengeRetried := false
	for {
		if !callerToken {
			liveToken, err := c.tokens.Token()
			if err != nil {
				return nil, err
			}
			if liveToken != "" {
				request.Params.Set(tokenKey, liveToken)
			}
		}

		response, err := c.transport.Send(request)
		if err != nil {
			return nil, err
		}

		if response.Status == http.StatusUnauthorized && !challengeRetried {
			challengeRetried = true
			if err := c.ensureChallenge(response.Header); err != nil {
				return nil, err
			}
			debug.Logger.Printf("discovered HTTP auth scheme %q, repeating call", c.tokens.HTTPScheme())
			continue
		}

		// errors cannot be represented in binary responses
		if response.IsFile {
			if response.Status != http.StatusOK {
				return nil, &transport.Error{Status: response.Status, Header: response.Header}
			}
			return response, nil
		}

		if fault := decodeFault(response.Body); fault != nil {
			if fault.Code == codeInvalidToken || fault.Code == codeTokenRequired {
				if callerToken || tokenRetries >= 1 {
					return nil, &InvalidTokenError{Message: fault.Message}
				}
				tokenRetries++
				request.Params.Del(tokenKey)
				if _, err := c.tokens.Relogin(); err != nil {
					return nil, &InvalidTokenError{Message: "token refresh failed: " + err.Error()}
				}
				continue
			}
			return nil, &ServiceError{Code: fault.Code, Message: fault.Message, Details: fault.Details}
		}

		if response.Status < http.StatusOK || response.Status >= http.StatusMultipleChoices {
			return nil, &transport.Error{Status: response.Status, Header: response.Header}
		}
		return response, nil
	}
}

// ensureChallenge runs the one-time HTTP scheme discovery. The first caller
// applies the challenge; every later caller, including concurrent result
// fetches sharing this connection, sees the same outcome. Each call repeats
// itself at most once on a 401 regardless of who probed.
func (c *Connection) ensureChallenge(header http.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.schemeProbed {
		c.schemeProbed = true
		c.schemeErr = c.tokens.ApplyChallenge(header)
	}
	return c.schemeErr
}

// decodeFault extracts the error envelope from a JSON payload, or nil.
func decodeFault(body []byte) *ServiceError {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return nil
	}
	return &ServiceError{
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
		Details: envelope.Error.Details,
	}
}
