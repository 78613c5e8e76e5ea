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

// Package profile persists named connection profiles on disk. Sensitive
// fields are obfuscated with a reversible letter substitution so they are
// not legible at a glance; this is obfuscation, not protection, and must
// never be treated as a security boundary. The file is permission-restricted
// to the owning user.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	storeDir  = ".portalgo"
	storeFile = "profiles.yaml"
	fileMode  = 0600
)

// Profile holds the connection parameters saved under a profile name.
// Password and RefreshToken are stored obfuscated.
type Profile struct {
	URL          string `yaml:"url"`
	Username     string `yaml:"username,omitempty"`
	Password     string `yaml:"password,omitempty"`
	CertFile     string `yaml:"cert_file,omitempty"`
	KeyFile      string `yaml:"key_file,omitempty"`
	ClientID     string `yaml:"client_id,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty"`
}

// Store reads and writes the profile file.
type Store struct {
	path string
}

// NewStore creates a store over the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStore locates the profile file in the user's home directory.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewStore(filepath.Join(home, storeDir, storeFile)), nil
}

// Save writes the profile under the given name, creating the file if absent.
func (s *Store) Save(name string, p Profile) error {
	profiles, err := s.read()
	if err != nil {
		return err
	}
	p.Password = Obfuscate(p.Password)
	p.RefreshToken = Obfuscate(p.RefreshToken)
	profiles[name] = p

	data, err := yaml.Marshal(profiles)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, fileMode)
}

// Load returns the profile saved under the given name, de-obfuscated.
func (s *Store) Load(name string) (Profile, error) {
	profiles, err := s.read()
	if err != nil {
		return Profile{}, err
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("no profile named %q in %s", name, s.path)
	}
	p.Password = Obfuscate(p.Password)
	p.RefreshToken = Obfuscate(p.RefreshToken)
	return p, nil
}

// Delete removes the profile saved under the given name.
func (s *Store) Delete(name string) error {
	profiles, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := profiles[name]; !ok {
		return fmt.Errorf("no profile named %q in %s", name, s.path)
	}
	delete(profiles, name)
	data, err := yaml.Marshal(profiles)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, fileMode)
}

// List returns the saved profile names.
func (s *Store) List() ([]string, error) {
	profiles, err := s.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) read() (map[string]Profile, error) {
	profiles := make(map[string]Profile)
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return profiles, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// Obfuscate applies a self-inverse character substitution: letters are
// rotated by 13, digits by 5. Applying it twice yields the input, so the
// same function both hides and recovers a value.
func Obfuscate(value string) string {
	rotated := []rune(value)
	for i, r := range rotated {
		switch {
		case r >= 'a' && r <= 'z':
			rotated[i] = 'a' + (r-'a'+13)%26
		case r >= 'A' && r <= 'Z':
			rotated[i] = 'A' + (r-'A'+13)%26
		case r >= '0' && r <= '9':
			rotated[i] = '0' + (r-'0'+5)%10
		}
	}
	return string(rotated)
}
