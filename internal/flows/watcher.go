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

package flows

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/ironflow/pkg/errors"
)

// debounceDelay coalesces bursts of filesystem events (editors tend to fire
// several per save) into a single reload.
const debounceDelay = 250 * time.Millisecond

// Watcher keeps an Index current by reloading it when flow files change.
type Watcher struct {
	index   *Index
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Watch starts watching the index's directory tree and returns the running
// watcher. Stop releases it.
func Watch(ctx context.Context, index *Index) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating filesystem watcher")
	}

	// fsnotify does not recurse, so register every subdirectory.
	addDirs := func() error {
		return filepath.WalkDir(index.Dir(), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return fsw.Add(path)
			}
			return nil
		})
	}
	if err := addDirs(); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watching %s", index.Dir())
	}

	w := &Watcher{
		index:   index,
		watcher: fsw,
		logger:  index.logger,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.eventLoop(ctx)
	w.logger.Info("flow directory watcher started")
	return w, nil
}

// Stop stops the watcher and waits for its event loop to exit.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer close(w.doneCh)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("flow file changed", "op", event.Op.String(), "path", event.Name)
			reload = time.After(debounceDelay)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("flow watcher error", "error", err)
		case <-reload:
			reload = nil
			if err := w.index.Reload(ctx); err != nil {
				indexReloadErrors.Inc()
				w.logger.Error("flow index reload failed", "error", err)
			}
		}
	}
}

// relevant filters events down to flow files and directory changes. A newly
// created directory is also registered so files created inside it are seen.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "path", event.Name, "error", err)
			}
			return true
		}
	}
	return IsFlowFile(event.Name)
}
