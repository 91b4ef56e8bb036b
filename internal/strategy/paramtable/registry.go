package paramtable

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ironfly/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Row holds the historical bearish/bullish percentages for one pattern key.
type Row struct {
	Bearish float64 `yaml:"bearish"`
	Bullish float64 `yaml:"bullish"`
}

// fileConfig maps the params file layout.
type fileConfig struct {
	Params map[string]Row `yaml:"params"`
}

// Snapshot is the published view of the table.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Rows     map[string]Row
}

// Registry serves the historical percentile table keyed by the five-letter
// YES/NO pattern. The backing file is watched and hot-reloaded.
type Registry struct {
	path string
	v    *viper.Viper

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewRegistry loads the table from path and watches it for changes. A missing
// file yields an empty table, not an error: the day classification then falls
// back to its default.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		return r, nil
	}
	if _, err := os.Stat(r.path); err != nil {
		logger.Warnf("params table %s missing, classification will use defaults", filepath.Base(r.path))
		return r, nil
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read params table failed: %w", err)
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("params table reload failed: %v", err)
		}
	})
	v.WatchConfig()
	r.v = v
	return r, nil
}

// Lookup returns the row for a pattern key.
func (r *Registry) Lookup(key string) (Row, bool) {
	if r == nil {
		return Row{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.snapshot.Rows[strings.TrimSpace(key)]
	return row, ok
}

// Len reports the number of table rows.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshot.Rows)
}

// Snapshot returns a copy of the current table.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dst := Snapshot{
		Version:  r.snapshot.Version,
		LoadedAt: r.snapshot.LoadedAt,
		Rows:     make(map[string]Row, len(r.snapshot.Rows)),
	}
	for k, row := range r.snapshot.Rows {
		dst.Rows[k] = row
	}
	return dst
}

func (r *Registry) reload() error {
	cfg, err := readParamsFile(r.path)
	if err != nil {
		return err
	}
	rows := make(map[string]Row, len(cfg.Params))
	for key, row := range cfg.Params {
		rows[strings.TrimSpace(key)] = row
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Rows:     rows,
	}
	r.mu.Unlock()
	logger.Infof("params table loaded %d rows from %s", len(rows), filepath.Base(r.path))
	return nil
}

func readParamsFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read params table failed: %w", err)
	}
	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse params table failed: %w", err)
	}
	return cfg, nil
}
