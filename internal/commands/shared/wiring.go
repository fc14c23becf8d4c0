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

package shared

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/tombee/ironflow/internal/config"
	"github.com/tombee/ironflow/internal/log"
	filestore "github.com/tombee/ironflow/internal/store/file"
	sqlitestore "github.com/tombee/ironflow/internal/store/sqlite"
	"github.com/tombee/ironflow/pkg/flow"
)

// LoadConfig loads the configuration honoring the global --config flag.
func LoadConfig() (*config.Config, error) {
	return config.Load(GetConfigPath())
}

// NewLogger builds the command logger from the config's log section,
// overlaid by --verbose and --quiet.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := log.FromEnv()
	if cfg.Log.Level != "" {
		lc.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		lc.Format = log.Format(cfg.Log.Format)
	}
	if GetVerbose() {
		lc.Level = "debug"
	}
	if GetQuiet() {
		lc.Level = "error"
	}
	return log.New(lc)
}

// OpenStore builds the configured state store. storeDir, when non-empty,
// overrides the config (the --store-dir flag). The returned closer releases
// backend resources; it is a no-op for non-sqlite stores.
func OpenStore(cfg *config.Config, storeDir string) (flow.StateStore, func() error, error) {
	dir := cfg.StoreDir
	if storeDir != "" {
		dir = storeDir
	}

	noop := func() error { return nil }
	switch cfg.Store.Type {
	case config.StoreTypeMemory:
		return flow.NewMemoryStore(), noop, nil
	case config.StoreTypeSQLite:
		path := cfg.Store.Path
		if path == "" {
			path = filepath.Join(dir, "runs.db")
		}
		st, err := sqlitestore.New(path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case config.StoreTypeFile, "":
		st, err := filestore.New(dir)
		if err != nil {
			return nil, nil, err
		}
		return st, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store type %q", cfg.Store.Type)
	}
}
