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

package token

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/terravista/portal-go/internal/transport"
)

func transportForTest() *transport.Transport {
	return transport.New(transport.Options{})
}

func TestManager_OAuthRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostFormValue("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", r.PostFormValue("grant_type"))
		}
		if r.PostFormValue("refresh_token") != "refresh-1" {
			t.Errorf("refresh_token = %q, want refresh-1", r.PostFormValue("refresh_token"))
		}
		fmt.Fprint(w, `{"access_token":"access-1","expires_in":1800,"refresh_token":"refresh-2"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	manager := NewManager(transportForTest(), Config{
		Root:        server.URL,
		Credentials: Credentials{ClientID: "app123", RefreshToken: "refresh-1"},
	})
	token, err := manager.Token()
	if err != nil {
		t.Fatal(err)
	}
	if token != "access-1" {
		t.Errorf("access token = %q, want access-1", token)
	}
	// a granted refresh token replaces the held one
	if manager.RefreshToken() != "refresh-2" {
		t.Errorf("held refresh token = %q, want refresh-2", manager.RefreshToken())
	}
}

func TestManager_OAuthRefreshFailureSurfaces(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":{"code":498,"message":"Invalid refresh token."}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	manager := NewManager(transportForTest(), Config{
		Root:        server.URL,
		Credentials: Credentials{ClientID: "app123", RefreshToken: "stale"},
	})
	_, err := manager.Token()
	if err == nil {
		t.Fatal("a failed refresh must surface, not be swallowed")
	}
	if !strings.Contains(err.Error(), "Invalid refresh token.") {
		t.Errorf("server message lost from error: %v", err)
	}
}

func TestManager_OAuthAuthorizationCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostFormValue("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q, want authorization_code", r.PostFormValue("grant_type"))
		}
		if r.PostFormValue("code") != "granted-code" {
			t.Errorf("code = %q, want granted-code", r.PostFormValue("code"))
		}
		fmt.Fprint(w, `{"access_token":"access-ac","expires_in":600,"refresh_token":"refresh-ac"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	var promptedURL string
	manager := NewManager(transportForTest(), Config{
		Root:        server.URL,
		Credentials: Credentials{ClientID: "app123"},
		Prompt: func(authorizeURL string) (string, error) {
			promptedURL = authorizeURL
			return "granted-code", nil
		},
	})

	token, err := manager.Token()
	if err != nil {
		t.Fatal(err)
	}
	if token != "access-ac" {
		t.Errorf("access token = %q, want access-ac", token)
	}
	if manager.RefreshToken() != "refresh-ac" {
		t.Errorf("refresh token %q not stored for future renewals", manager.RefreshToken())
	}

	authorize, err := url.Parse(promptedURL)
	if err != nil {
		t.Fatal(err)
	}
	query := authorize.Query()
	if query.Get("client_id") != "app123" || query.Get("response_type") != "code" {
		t.Errorf("authorize URL incomplete: %s", promptedURL)
	}
	if query.Get("state") == "" {
		t.Error("authorize URL carries no state value")
	}
}

func TestManager_OAuthWithoutPromptOrRefreshToken(t *testing.T) {
	manager := NewManager(transportForTest(), Config{
		Root:        "https://gis.example.com",
		Credentials: Credentials{ClientID: "app123"},
	})
	if _, err := manager.Token(); err == nil {
		t.Fatal("expected an error without a prompt or refresh token")
	}
}
