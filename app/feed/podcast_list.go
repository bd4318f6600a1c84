package feed

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Seed is a podcast declared in the feeds directory.
type Seed struct {
	Name    string `yaml:"-"`
	URL     string `yaml:"url"`
	Title   string `yaml:"title"`
	Enabled *bool  `yaml:"enabled"`
}

func (s *Seed) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// PodcastList caches seed podcasts read from *.yml files, one podcast per file.
type PodcastList struct {
	feedsDir string
	seeds    map[string]*Seed
	mu       sync.RWMutex
}

func NewPodcastList(feedsDir string) *PodcastList {
	return &PodcastList{
		feedsDir: feedsDir,
		seeds:    make(map[string]*Seed),
	}
}

// Run (re)loads every seed file. A missing directory is not an error.
func (pl *PodcastList) Run() error {
	if pl.feedsDir == "" {
		return nil
	}
	if _, err := os.Stat(pl.feedsDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(pl.feedsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	loaded := make(map[string]*Seed, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		seed, err := pl.parseSeed(file)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}
		seed.Name = name

		if err := validateSeed(seed); err != nil {
			return fmt.Errorf("invalid seed %s: %w", file, err)
		}

		loaded[name] = seed
		slog.Debug("Seed loaded", "name", name, "url", seed.URL, "enabled", seed.IsEnabled())
	}

	pl.mu.Lock()
	pl.seeds = loaded
	pl.mu.Unlock()

	return nil
}

func (pl *PodcastList) Get(name string) (*Seed, error) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	seed, ok := pl.seeds[name]
	if !ok {
		return nil, fmt.Errorf("seed with name '%s' not found", name)
	}
	return seed, nil
}

// Enabled returns the enabled seeds ordered by name.
func (pl *PodcastList) Enabled() []*Seed {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	seeds := make([]*Seed, 0, len(pl.seeds))
	for _, s := range pl.seeds {
		if s.IsEnabled() {
			seeds = append(seeds, s)
		}
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i].Name < seeds[j].Name })
	return seeds
}

func (pl *PodcastList) Count() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return len(pl.seeds)
}

func (pl *PodcastList) parseSeed(file string) (*Seed, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &seed, nil
}

func validateSeed(seed *Seed) error {
	if seed.URL == "" {
		return fmt.Errorf("feed URL is required")
	}
	if !strings.HasPrefix(seed.URL, "http://") && !strings.HasPrefix(seed.URL, "https://") {
		return fmt.Errorf("feed URL must be http or https: %s", seed.URL)
	}
	if seed.Title == "" {
		seed.Title = seed.Name
	}
	return nil
}
