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
	"crypto/tls"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/terravista/portal-go/internal/client"
	"github.com/terravista/portal-go/internal/crypto"
	"github.com/terravista/portal-go/internal/profile"
	"github.com/terravista/portal-go/internal/token"
	"github.com/terravista/portal-go/internal/transport"
)

// CodePrompt acquires an OAuth2 authorization code for an authorize URL,
// typically by opening a browser and reading the code back from the user.
type CodePrompt = token.CodePrompt

// sharingRoot is the REST root a portal exposes under its web address.
const sharingRoot = "/sharing/rest"

// Builder assembles a Portal connection. Credentials select the
// authentication scheme: OAuth wins over username/password, which wins over
// certificates; with none of those the connection is anonymous.
type Builder struct {
	rawURL     string
	server     bool
	referer    string
	timeout    time.Duration
	expiration time.Duration
	interval   time.Duration
	insecure   bool

	username string
	password string

	certFile   string
	keyFile    string
	passphrase string

	clientID     string
	redirectURI  string
	refreshToken string
	prompt       CodePrompt

	profileName string
	store       *profile.Store
}

// New returns a new Portal builder.
func New() *Builder {
	return &Builder{}
}

// ConnectTo sets the web address of the target portal or server.
func (b *Builder) ConnectTo(rawURL string) *Builder {
	b.rawURL = rawURL
	return b
}

// AsServer marks the target as a standalone GIS server rather than a portal.
// Servers identify token clients by request IP instead of referer.
func (b *Builder) AsServer() *Builder {
	b.server = true
	return b
}

// WithUserPassword authenticates with built-in credentials.
func (b *Builder) WithUserPassword(username, password string) *Builder {
	b.username = username
	b.password = password
	return b
}

// WithCertificate authenticates with a PEM client certificate and key pair.
// No token is issued; the certificate is presented at the TLS layer.
func (b *Builder) WithCertificate(certFile, keyFile string) *Builder {
	b.certFile = certFile
	b.keyFile = keyFile
	return b
}

// WithPKCS12 authenticates with a PKCS#12 client certificate bundle.
func (b *Builder) WithPKCS12(path, passphrase string) *Builder {
	b.certFile = path
	b.passphrase = passphrase
	return b
}

// WithOAuth authenticates as a registered OAuth2 application. The prompt is
// consulted for an authorization code whenever no refresh token is held.
func (b *Builder) WithOAuth(clientID string, prompt CodePrompt) *Builder {
	b.clientID = clientID
	b.prompt = prompt
	return b
}

// WithRedirectURI overrides the out-of-band OAuth redirect.
func (b *Builder) WithRedirectURI(uri string) *Builder {
	b.redirectURI = uri
	return b
}

// WithRefreshToken seeds the OAuth flow with a previously granted refresh
// token, skipping the interactive code exchange.
func (b *Builder) WithRefreshToken(refreshToken string) *Builder {
	b.refreshToken = refreshToken
	return b
}

// WithProfile loads connection parameters saved under the given profile
// name. Parameters set explicitly on the builder win over the profile.
func (b *Builder) WithProfile(name string) *Builder {
	b.profileName = name
	return b
}

// WithProfileStore overrides where profiles are read from. Used by tests.
func (b *Builder) WithProfileStore(store *profile.Store) *Builder {
	b.store = store
	return b
}

// WithReferer overrides the referer presented to the token endpoint.
func (b *Builder) WithReferer(referer string) *Builder {
	b.referer = referer
	return b
}

// TimeoutRequestAfter bounds each HTTP exchange. This is a per-call socket
// timeout, not an overall deadline for a job.
func (b *Builder) TimeoutRequestAfter(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithTokenExpiration requests tokens valid for the given duration.
func (b *Builder) WithTokenExpiration(expiration time.Duration) *Builder {
	b.expiration = expiration
	return b
}

// PollJobsEvery sets the interval between geoprocessing status polls.
func (b *Builder) PollJobsEvery(interval time.Duration) *Builder {
	b.interval = interval
	return b
}

// WithoutSSLVerification disables server certificate verification. For
// development against self-signed portals only.
func (b *Builder) WithoutSSLVerification() *Builder {
	b.insecure = true
	return b
}

// Create opens the connection. The token is not acquired here; it is created
// lazily on the first privileged call.
func (b *Builder) Create() (*Portal, error) {
	if b.profileName != "" {
		if err := b.applyProfile(); err != nil {
			return nil, err
		}
	}
	if b.rawURL == "" {
		return nil, errors.New("portal: a target URL must be provided")
	}
	root, err := normalizeRoot(b.rawURL, b.server)
	if err != nil {
		return nil, err
	}
	referer := b.referer
	if referer == "" {
		referer = root
	}

	certificates, err := b.clientCertificates()
	if err != nil {
		return nil, err
	}
	tr := transport.New(transport.Options{
		Timeout:            b.timeout,
		Referer:            referer,
		Certificates:       certificates,
		InsecureSkipVerify: b.insecure,
	})
	tokens := token.NewManager(tr, token.Config{
		Root:       root,
		Server:     b.server,
		Referer:    referer,
		Expiration: b.expiration,
		Prompt:     b.prompt,
		Credentials: token.Credentials{
			Username:     b.username,
			Password:     b.password,
			CertFile:     b.certFile,
			KeyFile:      b.keyFile,
			ClientID:     b.clientID,
			RedirectURI:  b.redirectURI,
			RefreshToken: b.refreshToken,
		},
	})
	return &Portal{
		conn:       client.New(tr, tokens),
		transport:  tr,
		referer:    referer,
		expiration: b.expiration,
		interval:   b.interval,
	}, nil
}

// applyProfile fills unset builder fields from the saved profile.
func (b *Builder) applyProfile() error {
	store := b.store
	if store == nil {
		var err error
		store, err = profile.DefaultStore()
		if err != nil {
			return err
		}
	}
	saved, err := store.Load(b.profileName)
	if err != nil {
		return err
	}
	if b.rawURL == "" {
		b.rawURL = saved.URL
	}
	if b.username == "" {
		b.username = saved.Username
		b.password = saved.Password
	}
	if b.certFile == "" {
		b.certFile = saved.CertFile
		b.keyFile = saved.KeyFile
	}
	if b.clientID == "" {
		b.clientID = saved.ClientID
	}
	if b.refreshToken == "" {
		b.refreshToken = saved.RefreshToken
	}
	return nil
}

func (b *Builder) clientCertificates() ([]tls.Certificate, error) {
	if b.certFile == "" {
		return nil, nil
	}
	var certificate tls.Certificate
	var err error
	if crypto.IsPKCS12(b.certFile) || b.keyFile == "" {
		certificate, err = crypto.LoadPKCS12(b.certFile, b.passphrase)
	} else {
		certificate, err = crypto.LoadKeyPair(b.certFile, b.keyFile)
	}
	if err != nil {
		return nil, err
	}
	return []tls.Certificate{certificate}, nil
}

// normalizeRoot resolves the REST root of the target. Portal web addresses
// gain the sharing root suffix; server and already-explicit REST URLs pass
// through unchanged.
func normalizeRoot(rawURL string, server bool) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("portal: target URL must use http or https")
	}
	root := strings.TrimSuffix(rawURL, "/")
	if !server && !strings.Contains(parsed.Path, sharingRoot) {
		root += sharingRoot
	}
	return root, nil
}
