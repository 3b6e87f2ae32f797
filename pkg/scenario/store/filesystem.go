// Copyright 2026 Stageflow Authors
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

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/stageflow-ai/stageflow/pkg/scenario"
	"github.com/stageflow-ai/stageflow/pkg/schema"
)

// Filesystem loads scenario definition files (.yaml, .yml, .json) from a
// directory and serves their built runtime forms. The backing files are the
// source of truth; the store itself is read-only.
type Filesystem struct {
	dir     string
	schemas *schema.Registry

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewFilesystem creates a store over the given directory. The directory must
// exist; its files are read lazily on each call.
func NewFilesystem(dir string, schemas *schema.Registry) (*Filesystem, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scenario directory: %w", err)
	}

	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access scenario directory %s: %w", absDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scenario path %s is not a directory", absDir)
	}

	return &Filesystem{
		dir:     absDir,
		schemas: schemas,
	}, nil
}

// Dir returns the absolute directory the store reads from.
func (f *Filesystem) Dir() string {
	return f.dir
}

func isScenarioFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// loadAll builds every scenario file in the directory. A file that fails to
// load or build is logged and skipped so one bad file does not hide the rest.
func (f *Filesystem) loadAll(ctx context.Context) ([]*scenario.Scenario, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory %s: %w", f.dir, err)
	}

	var scenarios []*scenario.Scenario
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isScenarioFile(entry.Name()) {
			continue
		}

		path := filepath.Join(f.dir, entry.Name())
		def, err := scenario.LoadDefinitionFile(path)
		if err != nil {
			slog.Warn("Skipping scenario file", "path", path, "error", err)
			continue
		}

		s, err := scenario.Build(def, f.schemas)
		if err != nil {
			slog.Warn("Skipping scenario file", "path", path, "error", err)
			continue
		}

		slog.Debug("Loaded scenario", "path", path, "scenario", s.Name, "stages", len(s.Stages))
		scenarios = append(scenarios, s)
	}

	return scenarios, nil
}

func (f *Filesystem) GetScenario(ctx context.Context, name string) (*scenario.Scenario, error) {
	scenarios, err := f.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, s := range scenarios {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return nil, nil
}

func (f *Filesystem) GetAllScenarios(ctx context.Context) ([]*scenario.Scenario, error) {
	return f.loadAll(ctx)
}

func (f *Filesystem) ListScenarioNames(ctx context.Context) ([]string, error) {
	scenarios, err := f.loadAll(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	return names, nil
}

// StoreScenario is not supported; scenario files are managed out of band.
func (f *Filesystem) StoreScenario(ctx context.Context, s *scenario.Scenario) error {
	return fmt.Errorf("filesystem scenario store is read-only")
}

// DeleteScenario is not supported; scenario files are managed out of band.
func (f *Filesystem) DeleteScenario(ctx context.Context, name string) error {
	return fmt.Errorf("filesystem scenario store is read-only")
}

// Watch starts watching the scenario directory for changes. The returned
// channel receives a value whenever a scenario file is written, created,
// removed, or renamed; rapid bursts are coalesced.
func (f *Filesystem) Watch(ctx context.Context) (<-chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, fmt.Errorf("store is closed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	f.watcher = watcher

	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", f.dir, err)
	}

	ch := make(chan struct{}, 1) // Buffered to avoid blocking

	go f.watchLoop(ctx, watcher, ch)

	slog.Info("Watching scenario directory", "dir", f.dir)
	return ch, nil
}

func (f *Filesystem) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, ch chan<- struct{}) {
	defer close(ch)
	defer watcher.Close()

	// Debounce timer to coalesce rapid changes
	var debounceTimer *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if !isScenarioFile(event.Name) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					select {
					case ch <- struct{}{}:
						slog.Debug("Scenario directory changed", "file", event.Name)
					default:
						// Channel full, change already pending
					}
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Scenario watcher error", "error", err)
		}
	}
}

// Close stops any active watcher.
func (f *Filesystem) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

var _ scenario.Store = (*Filesystem)(nil)
