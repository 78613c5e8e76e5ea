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

// Package crypto loads client certificates for PKI-protected services.
package crypto

import (
	"crypto/tls"
	"os"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// LoadKeyPair loads a client certificate from a PEM certificate/key file pair.
func LoadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	return tls.LoadX509KeyPair(certFile, keyFile)
}

// LoadPKCS12 loads a client certificate from a PKCS#12 bundle.
func LoadPKCS12(path, passphrase string) (cert tls.Certificate, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cert, err
	}
	key, leaf, err := pkcs12.Decode(data, passphrase)
	if err != nil {
		return cert, err
	}
	return tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// IsPKCS12 reports whether the path looks like a PKCS#12 bundle rather than
// a PEM pair.
func IsPKCS12(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx")
}
