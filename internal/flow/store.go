package flow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"gopkg.in/yaml.v3"

	"github.com/opuscare/sahayak/internal/classifier"
)

// ErrFlowNotFound is returned when no flow document exists for an intent.
var ErrFlowNotFound = errors.New("flow not found")

// Store loads flow documents from a directory and caches the parsed result
// for the life of the process. Flows never expire; a redeploy is the only
// way flow content changes.
type Store struct {
	dir   string
	cache *gocache.Cache
}

// NewStore builds a store over the flow documents in dir.
func NewStore(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get returns the flow for an intent, loading and parsing it on first use.
func (s *Store) Get(intent classifier.Intent) (*Flow, error) {
	key := string(intent)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*Flow), nil
	}

	path := filepath.Join(s.dir, fileFor(intent))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: intent %s (%s)", ErrFlowNotFound, intent, path)
		}
		return nil, fmt.Errorf("read flow %s: %w", path, err)
	}

	var f Flow
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse flow %s: %w", path, err)
	}

	s.cache.Set(key, &f, gocache.NoExpiration)
	return &f, nil
}

// List returns the flow file names present in the store directory.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list flows %s: %w", s.dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// fileFor maps an intent to its flow document. UNCLEAR is scripted by the
// clarification flow rather than a file named after the sentinel.
func fileFor(intent classifier.Intent) string {
	if intent == classifier.IntentUnclear {
		return "clarify.yaml"
	}
	return strings.ToLower(string(intent)) + ".yaml"
}
