package literal

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
)

// CustomParser converts literal text to a value. It reports ok=false when
// the text is not in a form it understands.
//
// Implementations are compared by identity and must be comparable (pointer
// types are).
type CustomParser interface {
	ParseLiteral(text string, expected edm.TypeRef) (v Value, ok bool, err error)
}

// FuncParser adapts a function to CustomParser.
type FuncParser struct {
	Name string
	Fn   func(text string, expected edm.TypeRef) (Value, bool, error)
}

// NewFuncParser returns a CustomParser backed by fn.
func NewFuncParser(name string, fn func(string, edm.TypeRef) (Value, bool, error)) *FuncParser {
	return &FuncParser{Name: name, Fn: fn}
}

func (p *FuncParser) ParseLiteral(text string, expected edm.TypeRef) (Value, bool, error) {
	return p.Fn(text, expected)
}

// Registry errors.
var (
	ErrParserRegistered = errors.New("custom literal parser is already registered")
	ErrTypeRegistered   = errors.New("a custom literal parser is already registered for this type")
)

// snapshot is immutable once published.
type snapshot struct {
	byType  map[string]CustomParser
	general []CustomParser
}

var emptySnapshot = &snapshot{byType: map[string]CustomParser{}}

// Registry holds custom literal parsers. Readers load an immutable snapshot;
// writers copy it and publish the copy with compare-and-swap, retrying when
// another writer won the race.
type Registry struct {
	state atomic.Pointer[snapshot]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.state.Store(emptySnapshot)
	return r
}

func (r *Registry) load() *snapshot {
	if s := r.state.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

// update applies fn to a copy of the current snapshot until the copy is
// published without interference. fn returning an error aborts the update.
func (r *Registry) update(fn func(s *snapshot) error) error {
	for {
		old := r.state.Load()
		cur := old
		if cur == nil {
			cur = emptySnapshot
		}
		next := &snapshot{
			byType:  make(map[string]CustomParser, len(cur.byType)+1),
			general: append([]CustomParser(nil), cur.general...),
		}
		for k, v := range cur.byType {
			next.byType[k] = v
		}
		if err := fn(next); err != nil {
			return err
		}
		if r.state.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// Add registers a parser consulted for every type.
func (r *Registry) Add(p CustomParser) error {
	return r.update(func(s *snapshot) error {
		for _, existing := range s.general {
			if existing == p {
				return ErrParserRegistered
			}
		}
		s.general = append(s.general, p)
		return nil
	})
}

// AddForType registers a parser consulted only for the named EDM type. Only
// one parser may be registered per type.
func (r *Registry) AddForType(typeName string, p CustomParser) error {
	return r.update(func(s *snapshot) error {
		if _, ok := s.byType[typeName]; ok {
			return ErrTypeRegistered
		}
		s.byType[typeName] = p
		return nil
	})
}

// Remove unregisters p wherever it is registered and reports whether it was.
func (r *Registry) Remove(p CustomParser) bool {
	removed := false
	_ = r.update(func(s *snapshot) error {
		removed = false
		for i, existing := range s.general {
			if existing == p {
				s.general = append(s.general[:i], s.general[i+1:]...)
				removed = true
				break
			}
		}
		for k, existing := range s.byType {
			if existing == p {
				delete(s.byType, k)
				removed = true
			}
		}
		return nil
	})
	return removed
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	s := r.load()
	return len(s.byType) + len(s.general)
}

// Parse consults the parser registered for the expected type, then the
// general parsers in registration order.
func (r *Registry) Parse(text string, expected edm.TypeRef) (Value, bool, error) {
	s := r.load()
	if expected.Type != nil {
		if p, ok := s.byType[expected.Type.FullName()]; ok {
			if v, ok, err := p.ParseLiteral(text, expected); err != nil || ok {
				return v, ok, err
			}
		}
	}
	for _, p := range s.general {
		if v, ok, err := p.ParseLiteral(text, expected); err != nil || ok {
			return v, ok, err
		}
	}
	return Null, false, nil
}

// Global is the process-wide registry. It is consulted after the registry of
// the model being parsed against.
var Global = NewRegistry()

var modelRegistries sync.Map // weak.Pointer[edm.Model] -> *Registry

// ForModel returns the registry associated with m, creating it on first use.
// The association does not keep m alive; it is dropped once m is collected.
func ForModel(m *edm.Model) *Registry {
	key := weak.Make(m)
	if r, ok := modelRegistries.Load(key); ok {
		return r.(*Registry)
	}
	actual, loaded := modelRegistries.LoadOrStore(key, NewRegistry())
	if !loaded {
		runtime.AddCleanup(m, func(k weak.Pointer[edm.Model]) {
			modelRegistries.Delete(k)
		}, key)
	}
	return actual.(*Registry)
}
