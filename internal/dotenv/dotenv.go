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

// Package dotenv loads KEY=VALUE pairs from a .env file into the process
// environment. Variables already set in the environment are never
// overridden, so the shell keeps precedence over the file.
package dotenv

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// DefaultFile is the filename auto-discovered in the working directory.
const DefaultFile = ".env"

// Load reads the file at path and sets each variable that is not already
// present in the environment. Returns the number of variables set.
func Load(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	loaded := 0
	scanner := bufio.NewScanner(f)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return loaded, fmt.Errorf("%s:%d: expected KEY=VALUE, got %q", path, lineNo, line)
		}

		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if key == "" {
			return loaded, fmt.Errorf("%s:%d: empty variable name", path, lineNo)
		}

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return loaded, fmt.Errorf("setting %s: %w", key, err)
		}
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return loaded, fmt.Errorf("reading %s: %w", path, err)
	}
	return loaded, nil
}

// LoadDefault loads ./.env when it exists; a missing file is not an error.
func LoadDefault() (int, error) {
	if _, err := os.Stat(DefaultFile); os.IsNotExist(err) {
		return 0, nil
	}
	return Load(DefaultFile)
}

// unquote strips one level of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
