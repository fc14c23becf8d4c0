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

// Package shared holds state and helpers common to all ironflow
// subcommands: global flags, exit-code errors, terminal styles, and the
// wiring that turns a Config into a live store and engine.
package shared

// Global flag values, bound by the root command.
var (
	verboseFlag bool
	quietFlag   bool
	jsonFlag    bool
	configFlag  string
	dotenvFlag  string

	// Build-time version information.
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// RegisterFlagPointers returns pointers to the global flag variables for the
// root command to bind.
func RegisterFlagPointers() (verbose, quiet, json *bool, config, dotenv *string) {
	return &verboseFlag, &quietFlag, &jsonFlag, &configFlag, &dotenvFlag
}

// SetVersion records build-time version information (called from main).
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbose returns the --verbose flag value.
func GetVerbose() bool { return verboseFlag }

// GetQuiet returns the --quiet flag value.
func GetQuiet() bool { return quietFlag }

// GetJSON returns the --json flag value.
func GetJSON() bool { return jsonFlag }

// GetConfigPath returns the --config flag value.
func GetConfigPath() string { return configFlag }

// GetDotenvPath returns the --dotenv flag value.
func GetDotenvPath() string { return dotenvFlag }

// GetVersion returns the build-time version information.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// SetVerboseForTest sets the global --verbose flag value for tests.
func SetVerboseForTest(v bool) { verboseFlag = v }

// SetJSONForTest sets the global --json flag value for tests.
func SetJSONForTest(v bool) { jsonFlag = v }

// SetQuietForTest sets the global --quiet flag value for tests.
func SetQuietForTest(v bool) { quietFlag = v }
