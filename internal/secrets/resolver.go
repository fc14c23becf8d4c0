// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package secrets resolves secret references of the form scheme:key.
// Supported schemes: env (environment variable), keychain (OS keyring),
// file (first line of a file). A reference without a scheme is returned
// as a literal, so plain config values keep working.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// keyringService namespaces ironflow entries in the OS keyring.
const keyringService = "ironflow"

// Resolve resolves a secret reference to its value.
//
//	env:WEBHOOK_SECRET   -> os.Getenv("WEBHOOK_SECRET")
//	keychain:hook-secret -> OS keyring lookup under the ironflow service
//	file:/etc/secret     -> first line of the file
//	anything-else        -> returned verbatim
func Resolve(reference string) (string, error) {
	scheme, key, ok := strings.Cut(reference, ":")
	if !ok {
		return reference, nil
	}

	switch scheme {
	case "env":
		value := os.Getenv(key)
		if value == "" {
			return "", fmt.Errorf("environment variable %s is not set", key)
		}
		return value, nil

	case "keychain":
		value, err := keyring.Get(keyringService, key)
		if err != nil {
			return "", fmt.Errorf("keychain lookup for %s: %w", key, err)
		}
		return value, nil

	case "file":
		data, err := os.ReadFile(key)
		if err != nil {
			return "", fmt.Errorf("reading secret file %s: %w", key, err)
		}
		value := strings.TrimRight(strings.SplitN(string(data), "\n", 2)[0], "\r")
		if value == "" {
			return "", fmt.Errorf("secret file %s is empty", key)
		}
		return value, nil

	default:
		// Unknown scheme: treat the whole reference as a literal. Values
		// like "https://example.com" contain a colon but are not references.
		return reference, nil
	}
}
