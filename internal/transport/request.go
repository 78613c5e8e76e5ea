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

package transport

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"

	"github.com/dchest/uniuri"
)

// defaultFileField is the form field name the service expects for uploads
// when the caller does not name one.
const defaultFileField = "file"

// File is a single attachment carried by a multipart request. The content is
// read from Path unless Content is set directly.
type File struct {
	Field       string
	Name        string
	ContentType string
	Path        string
	Content     []byte
}

// Request describes one exchange with the service.
type Request struct {
	Method string
	URL    string
	Params url.Values
	Files  []File

	// DisableCompression stops the request from asking for a gzip response.
	DisableCompression bool

	// OutDir, when set, is where a file-like response is streamed to. An
	// empty OutDir buffers file responses in memory instead.
	OutDir string
}

// build converts the Request into an http.Request. POSTs carry the parameters
// as a form-encoded body, switching to multipart/form-data as soon as any
// file is attached.
func (r *Request) build() (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	// attachments always travel in a multipart body, whatever the caller
	// set as the method
	if len(r.Files) > 0 && method == http.MethodGet {
		method = http.MethodPost
	}

	var request *http.Request
	var err error
	switch {
	case method == http.MethodGet:
		target := r.URL
		if len(r.Params) > 0 {
			separator := "?"
			if strings.Contains(target, "?") {
				separator = "&"
			}
			target += separator + r.Params.Encode()
		}
		request, err = http.NewRequest(http.MethodGet, target, nil)
	case len(r.Files) > 0:
		body, contentType := r.multipartBody()
		request, err = http.NewRequest(method, r.URL, body)
		if err == nil {
			request.Header.Set("Content-Type", contentType)
		}
	default:
		request, err = http.NewRequest(method, r.URL, strings.NewReader(r.Params.Encode()))
		if err == nil {
			request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	if !r.DisableCompression {
		request.Header.Set("Accept-Encoding", "gzip")
	}
	return request, nil
}

// multipartBody encodes the parameters and attachments as multipart/form-data
// with a random boundary. Attachments are streamed through a pipe one at a
// time so that only a single file is open at any moment.
func (r *Request) multipartBody() (io.ReadCloser, string) {
	reader, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	// the boundary restriction in RFC 2046 permits the uniuri alphabet
	_ = form.SetBoundary("portalgo" + uniuri.NewLen(30))

	go func() {
		err := r.writeForm(form)
		if closeErr := form.Close(); err == nil {
			err = closeErr
		}
		writer.CloseWithError(err)
	}()
	return reader, form.FormDataContentType()
}

func (r *Request) writeForm(form *multipart.Writer) error {
	for key, values := range r.Params {
		for _, value := range values {
			if err := form.WriteField(key, value); err != nil {
				return err
			}
		}
	}
	for _, file := range r.Files {
		if err := writeFilePart(form, file); err != nil {
			return err
		}
	}
	return nil
}

func writeFilePart(form *multipart.Writer, file File) error {
	field := file.Field
	if field == "" {
		field = defaultFileField
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return err
	}

	if file.Content != nil {
		_, err = part.Write(file.Content)
		return err
	}
	source, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, source)
	if closeErr := source.Close(); err == nil {
		err = closeErr
	}
	return err
}
