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

package debug

import (
	"io"
	"log"
	"net/http"
	"net/http/httputil"
)

// Logger receives all SDK debug output. Muted by default; assign a live
// logger to see the output.
var Logger = log.New(io.Discard, "", log.LstdFlags)

// DumpHTTPRoundTrip will dump the given request and response
func DumpHTTPRoundTrip(req *http.Request, res *http.Response) (message string) {
	if req != nil {
		dump, err := httputil.DumpRequest(req, true)
		if err != nil {
			dump, err = httputil.DumpRequest(req, false)
		}
		message = "*** HTTP Request ***\n"
		if err == nil {
			message += string(dump)
		} else {
			message += "Failed to dump request: " + err.Error()
		}
	}

	if res != nil {
		dump, err := httputil.DumpResponse(res, false)
		message += "*** HTTP Response ***\n"
		if err == nil {
			message += string(dump)
		} else {
			message += "Failed to dump response: " + err.Error()
		}
	}
	return message
}
