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

// Package transport sends requests to the GIS service and decodes the raw
// responses. It owns body encoding (form or multipart), response compression
// and the file-or-text classification of what comes back; it knows nothing
// about tokens or the JSON error envelope.
package transport

import (
	"bytes"
	"compress/gzip"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/terravista/portal-go/internal/debug"
)

// responses are inflated and copied in fixed-size chunks to bound memory use
const copyChunkSize = 32 * 1024

// Error is a transport-level failure: the network exchange itself failed, or
// the service answered with a status that carried no parseable error
// envelope. The HTTP status and headers are preserved for the caller.
type Error struct {
	Status int
	Header http.Header
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "transport failure: " + e.Err.Error()
	}
	return fmt.Sprintf("transport failure: HTTP %d %s", e.Status, http.StatusText(e.Status))
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Response is the raw outcome of a Send: either a file-like payload
// (streamed to Path or buffered in Body) or a text payload in Body.
type Response struct {
	Status   int
	Header   http.Header
	IsFile   bool
	Filename string
	Path     string
	Body     []byte
}

// Text returns the buffered payload as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Options configure a Transport.
type Options struct {
	Timeout time.Duration
	Referer string

	// Certificates are presented to the server during the TLS handshake.
	// This is how PKI-protected services authenticate a caller; no token
	// is involved.
	Certificates []tls.Certificate

	InsecureSkipVerify bool
}

// Transport performs stateless HTTP exchanges with the service. One instance
// is shared by all calls of a connection, including concurrent ones, so the
// basic-auth switch is guarded.
type Transport struct {
	client  http.Client
	referer string

	mu        sync.Mutex
	basicUser string
	basicPass string
	basicAuth bool
}

// New creates a Transport with the given options.
func New(opts Options) *Transport {
	t := &Transport{referer: opts.Referer}
	t.client.Timeout = opts.Timeout
	if len(opts.Certificates) > 0 || opts.InsecureSkipVerify {
		t.client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates:       opts.Certificates,
				InsecureSkipVerify: opts.InsecureSkipVerify,
			},
		}
	}
	return t
}

// UseBasicAuth attaches HTTP Basic credentials to every subsequent request.
// Called once after a 401 probe discovers that the target uses Basic
// challenges instead of token parameters.
func (t *Transport) UseBasicAuth(username, password string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.basicUser = username
	t.basicPass = password
	t.basicAuth = true
}

// SetRootCAs replaces the certificate pool used to verify the server.
// Exists for tests that stand up TLS servers with self-signed roots.
func (t *Transport) SetRootCAs(pool *x509.CertPool) {
	existing, ok := t.client.Transport.(*http.Transport)
	if !ok {
		existing = &http.Transport{}
	}
	if existing.TLSClientConfig == nil {
		existing.TLSClientConfig = &tls.Config{}
	}
	existing.TLSClientConfig.RootCAs = pool
	t.client.Transport = existing
}

// Send performs one exchange. A nil error means the exchange completed and
// the body was fully read; the caller decides what the status and payload
// mean. Network failures are returned as *Error.
func (t *Transport) Send(req *Request) (*Response, error) {
	request, err := req.build()
	if err != nil {
		return nil, err
	}
	if t.referer != "" {
		request.Header.Set("Referer", t.referer)
	}
	t.mu.Lock()
	if t.basicAuth {
		request.SetBasicAuth(t.basicUser, t.basicPass)
	}
	t.mu.Unlock()

	response, err := t.client.Do(request)
	if err != nil {
		debug.Logger.Println(debug.DumpHTTPRoundTrip(request, nil))
		return nil, &Error{Err: err}
	}
	defer response.Body.Close()

	body := io.Reader(response.Body)
	if strings.EqualFold(response.Header.Get("Content-Encoding"), "gzip") {
		inflater, err := gzip.NewReader(response.Body)
		if err != nil {
			debug.Logger.Println(debug.DumpHTTPRoundTrip(request, response))
			return nil, &Error{Status: response.StatusCode, Header: response.Header, Err: err}
		}
		defer inflater.Close()
		body = inflater
	}

	result := &Response{Status: response.StatusCode, Header: response.Header}
	result.IsFile, result.Filename = fileAttachment(response.Header)
	if result.IsFile && result.Filename == "" {
		result.Filename = fallbackFilename(response.Header.Get("Content-Type"))
	}

	if result.IsFile && req.OutDir != "" {
		err = streamToFile(result, body, req.OutDir)
	} else {
		err = bufferBody(result, body)
	}
	if err != nil {
		debug.Logger.Println(debug.DumpHTTPRoundTrip(request, response))
		return nil, &Error{Status: response.StatusCode, Header: response.Header, Err: err}
	}
	return result, nil
}

func bufferBody(result *Response, body io.Reader) error {
	var buffer bytes.Buffer
	_, err := io.CopyBuffer(&buffer, body, make([]byte, copyChunkSize))
	result.Body = buffer.Bytes()
	return err
}

func streamToFile(result *Response, body io.Reader, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	// content-disposition names come from the wire; keep the base name only
	path := filepath.Join(dir, filepath.Base(result.Filename))
	destination, err := os.Create(path)
	if err != nil {
		return err
	}
	_, err = io.CopyBuffer(destination, body, make([]byte, copyChunkSize))
	if closeErr := destination.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	result.Path = path
	return nil
}

// fileAttachment reports whether the response headers describe a file-like
// payload, and the filename declared by content-disposition if any.
func fileAttachment(header http.Header) (isFile bool, filename string) {
	if disposition := header.Get("Content-Disposition"); disposition != "" {
		kind, params, err := mime.ParseMediaType(disposition)
		if err == nil && kind == "attachment" {
			return true, params["filename"]
		}
	}
	contentType, _, _ := mime.ParseMediaType(header.Get("Content-Type"))
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return true, ""
	case contentType == "application/zip",
		contentType == "application/x-zip-compressed",
		contentType == "application/octet-stream":
		return true, ""
	}
	return false, ""
}

// fallbackFilename invents a name for a file payload the server did not name,
// guessing the extension from the content type.
func fallbackFilename(contentType string) string {
	name := uniuri.New()
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if extensions, err := mime.ExtensionsByType(mediaType); err == nil && len(extensions) > 0 {
		return name + extensions[0]
	}
	return name
}
