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

package dotenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeEnvFile(t, `
# comment line
IRONFLOW_DOTENV_A=plain
IRONFLOW_DOTENV_B="double quoted"
IRONFLOW_DOTENV_C='single quoted'
export IRONFLOW_DOTENV_D=exported

IRONFLOW_DOTENV_E=has=equals
`)
	for _, key := range []string{"IRONFLOW_DOTENV_A", "IRONFLOW_DOTENV_B", "IRONFLOW_DOTENV_C", "IRONFLOW_DOTENV_D", "IRONFLOW_DOTENV_E"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	n, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, "plain", os.Getenv("IRONFLOW_DOTENV_A"))
	assert.Equal(t, "double quoted", os.Getenv("IRONFLOW_DOTENV_B"))
	assert.Equal(t, "single quoted", os.Getenv("IRONFLOW_DOTENV_C"))
	assert.Equal(t, "exported", os.Getenv("IRONFLOW_DOTENV_D"))
	assert.Equal(t, "has=equals", os.Getenv("IRONFLOW_DOTENV_E"))
}

func TestLoadNeverOverridesProcessEnv(t *testing.T) {
	path := writeEnvFile(t, "IRONFLOW_DOTENV_SET=from-file\n")
	t.Setenv("IRONFLOW_DOTENV_SET", "from-shell")

	n, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "from-shell", os.Getenv("IRONFLOW_DOTENV_SET"))
}

func TestLoadMalformedLine(t *testing.T) {
	path := writeEnvFile(t, "NOT A VALID LINE\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}
