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
	"github.com/terravista/portal-go/internal/client"
	"github.com/terravista/portal-go/internal/job"
	"github.com/terravista/portal-go/internal/token"
	"github.com/terravista/portal-go/internal/transport"
)

// The error taxonomy of a connection, re-exported so callers can match with
// errors.As. A failed call always carries the server-supplied text verbatim
// plus the numeric code, keeping the platform's own diagnostics visible.
type (
	// TransportError is a network or HTTP-layer failure without a
	// parseable service error envelope.
	TransportError = transport.Error

	// ServiceError is a structured error envelope with a non-token-expiry
	// code. Never retried automatically.
	ServiceError = client.ServiceError

	// InvalidTokenError means a token refresh did not cure a token-expired
	// reply.
	InvalidTokenError = client.InvalidTokenError

	// AuthSchemeUnsupportedError means a 401 probe discovered a challenge
	// scheme this client cannot satisfy.
	AuthSchemeUnsupportedError = token.SchemeUnsupportedError

	// NoJobIDError means a job submission returned no identifier; the job
	// never started.
	NoJobIDError = job.NoJobIDError

	// JobFailedError is a job that ran and failed.
	JobFailedError = job.FailedError

	// JobCancelledError is a job cancelled before completion.
	JobCancelledError = job.CancelledError

	// JobTimedOutError is a job that exceeded its server-side time limit.
	JobTimedOutError = job.TimedOutError
)
