package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// PrimarySourceID is reserved for the store that receives writes
const PrimarySourceID = "primary"

const sourcesDebounce = 500 * time.Millisecond

// SourceSpec names one read-only peer source
type SourceSpec struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// SourcesFile is the YAML document listing peer sources in lookup order
type SourcesFile struct {
	Sources []SourceSpec `yaml:"sources"`
}

// ParseSources decodes and validates a sources document
func ParseSources(data []byte) ([]SourceSpec, error) {
	var file SourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources YAML: %w", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i, s := range file.Sources {
		s.ID = strings.TrimSpace(s.ID)
		s.URL = strings.TrimSpace(s.URL)
		switch {
		case s.ID == "":
			return nil, fmt.Errorf("source %d: id is required", i)
		case s.ID == PrimarySourceID:
			return nil, fmt.Errorf("source %d: id %q is reserved", i, PrimarySourceID)
		case seen[s.ID]:
			return nil, fmt.Errorf("source %d: duplicate id %q", i, s.ID)
		case s.URL == "":
			return nil, fmt.Errorf("source %q: url is required", s.ID)
		}
		seen[s.ID] = true
		file.Sources[i] = s
	}
	return file.Sources, nil
}

// LoadSources reads the sources file. A missing file means no peers.
func LoadSources(path string) ([]SourceSpec, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}
	return ParseSources(data)
}

// WatchSources calls onChange with the parsed list whenever the file is
// written or created, until ctx is done. Invalid edits are logged and ignored.
func WatchSources(ctx context.Context, path string, onChange func([]SourceSpec)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}

	// Watch the directory; editors replace files rather than writing in place
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	log.Printf("👁️  [SOURCES] Watching %s for changes", path)

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filename {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(sourcesDebounce, func() {
					specs, err := LoadSources(absPath)
					if err != nil {
						log.Printf("❌ [SOURCES] Ignoring invalid %s: %v", path, err)
						return
					}
					log.Printf("🔄 [SOURCES] Reloaded %d peer sources from %s", len(specs), path)
					onChange(specs)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️  [SOURCES] File watcher error: %v", err)
			}
		}
	}()

	return nil
}
