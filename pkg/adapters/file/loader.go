// Package file loads tour definitions from YAML and JSON files.
//
// Every document is checked against an embedded JSON Schema before it is
// decoded, then validated semantically. A YAML file may hold several tours
// separated by "---".
package file

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/internal/validator"
	"github.com/aretw0/narrate/pkg/domain"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/fsnotify/fsnotify"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed tour.schema.json
var schemaJSON []byte

var tourSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

// Schema returns the JSON Schema tour documents are checked against.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// Loader implements ports.TourLoader over a file or a directory of files.
type Loader struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	tours []domain.TourDefinition
}

var (
	_ ports.TourLoader = (*Loader)(nil)
	_ ports.Watchable  = (*Loader)(nil)
)

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) { ld.logger = l }
}

// NewLoader reads every tour under path. Path may be a single file or a
// directory, which is scanned recursively for .yaml, .yml and .json files.
func NewLoader(path string, opts ...Option) (*Loader, error) {
	l := &Loader{path: path, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload re-reads the files. On error the previously loaded tours are kept.
func (l *Loader) Reload() error {
	files, err := tourFiles(l.path)
	if err != nil {
		return err
	}

	var tours []domain.TourDefinition
	for _, f := range files {
		ts, err := ParseFile(f)
		if err != nil {
			return err
		}
		tours = append(tours, ts...)
	}
	if err := validator.ValidateTours(tours); err != nil {
		return err
	}

	l.mu.Lock()
	l.tours = tours
	l.mu.Unlock()
	l.logger.Debug("tours loaded", "path", l.path, "count", len(tours))
	return nil
}

// Tours returns the tours in file order.
func (l *Loader) Tours(_ context.Context) ([]domain.TourDefinition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.TourDefinition(nil), l.tours...), nil
}

// Tour returns the tour with the given id.
func (l *Loader) Tour(_ context.Context, id string) (domain.TourDefinition, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tours {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.TourDefinition{}, fmt.Errorf("%w: %s", domain.ErrTourNotFound, id)
}

// Watch reloads the tours whenever a file under the path changes and signals
// each successful reload. The channel closes when ctx ends.
func (l *Loader) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	dirs, err := watchDirs(l.path)
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !isTourFile(ev.Name) || ev.Op == fsnotify.Chmod {
					continue
				}
				if err := l.Reload(); err != nil {
					l.logger.Warn("tour reload failed", "file", ev.Name, "err", err)
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("tour watcher error", "err", err)
			}
		}
	}()
	return ch, nil
}

// ParseFile reads and checks the tours of a single file.
func ParseFile(path string) ([]domain.TourDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	tours, err := Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tours, nil
}

// Parse decodes tours from data. Ext selects the format: ".json" for JSON,
// anything else for YAML.
func Parse(ext string, data []byte) ([]domain.TourDefinition, error) {
	docs, err := documents(ext, data)
	if err != nil {
		return nil, err
	}

	schema, err := tourSchema()
	if err != nil {
		return nil, fmt.Errorf("load tour schema: %w", err)
	}

	tours := make([]domain.TourDefinition, 0, len(docs))
	for i, doc := range docs {
		res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if !res.Valid() {
			msgs := make([]string, 0, len(res.Errors()))
			for _, e := range res.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, fmt.Errorf("%w: document %d:\n- %s", domain.ErrInvalidTour, i, strings.Join(msgs, "\n- "))
		}

		// Round-trip through YAML so durations like "2s" decode into time.Duration.
		raw, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		var t domain.TourDefinition
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		tours = append(tours, t)
	}
	return tours, nil
}

func documents(ext string, data []byte) ([]any, error) {
	if strings.EqualFold(ext, ".json") {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return []any{doc}, nil
	}

	var docs []any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc any
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no documents", domain.ErrInvalidTour)
	}
	return docs, nil
}

func tourFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("tours path: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") && p != path {
			return filepath.SkipDir
		}
		if !d.IsDir() && isTourFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

func watchDirs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("tours path: %w", err)
	}
	if !info.IsDir() {
		return []string{filepath.Dir(path)}, nil
	}
	var dirs []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != path {
				return filepath.SkipDir
			}
			dirs = append(dirs, p)
		}
		return nil
	})
	return dirs, err
}

func isTourFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
