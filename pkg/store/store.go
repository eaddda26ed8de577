// Package store provides in-memory storage for the metadata models that
// request URIs are parsed against.
package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
)

var (
	// ErrNotFound is returned for unknown model names.
	ErrNotFound = errors.New("model not found")
	// ErrInvalidName is returned for names that cannot appear in a URL path.
	ErrInvalidName = errors.New("invalid model name")
)

var validModelName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

// Entry is a stored model together with the YAML it was loaded from.
type Entry struct {
	Name       string     `json:"name"`
	Namespace  string     `json:"namespace"`
	RevisionID string     `json:"revisionId"`
	CreateTime time.Time  `json:"createTime"`
	UpdateTime time.Time  `json:"updateTime"`
	Source     string     `json:"-"`
	Model      *edm.Model `json:"-"`
}

// Store is a thread-safe in-memory registry of models by name.
type Store struct {
	mu         sync.RWMutex
	models     map[string]*Entry
	revCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{models: make(map[string]*Entry)}
}

// Put parses source as a YAML model and stores it under name, replacing any
// previous revision. created reports whether the name was new.
func (s *Store) Put(name string, source []byte) (entry *Entry, created bool, err error) {
	if !validModelName.MatchString(name) || len(name) > 128 {
		return nil, false, fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	m, err := edm.LoadYAML(source)
	if err != nil {
		return nil, false, fmt.Errorf("model '%s': %w", name, err)
	}
	return s.put(name, string(source), m)
}

// PutModel stores a model built in code.
func (s *Store) PutModel(name string, m *edm.Model) (*Entry, bool, error) {
	if !validModelName.MatchString(name) || len(name) > 128 {
		return nil, false, fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	return s.put(name, "", m)
}

func (s *Store) put(name, source string, m *edm.Model) (*Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revCounter++
	now := time.Now()
	rev := fmt.Sprintf("%06d-000", s.revCounter)
	if prev, ok := s.models[name]; ok {
		e := &Entry{Name: name, Namespace: m.Namespace, RevisionID: rev, CreateTime: prev.CreateTime,
			UpdateTime: now, Source: source, Model: m}
		s.models[name] = e
		return e, false, nil
	}
	e := &Entry{Name: name, Namespace: m.Namespace, RevisionID: rev, CreateTime: now, UpdateTime: now,
		Source: source, Model: m}
	s.models[name] = e
	return e, true, nil
}

// Get retrieves a model by name.
func (s *Store) Get(name string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	return e, nil
}

// List returns all models sorted by name.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.models))
	for _, e := range s.models {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Delete removes a model.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.models[name]; !ok {
		return fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	delete(s.models, name)
	return nil
}
