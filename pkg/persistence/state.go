package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/mash-protocol/webchannel-go/pkg/meta"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// Restore errors.
var (
	ErrUnknownObject   = errors.New("unknown object")
	ErrUnknownProperty = errors.New("unknown property")
	ErrVersion         = errors.New("unsupported state version")
)

// State is a snapshot of published object properties.
type State struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Objects maps object ids to property names and values.
	Objects map[string]map[string]any `json:"objects,omitempty"`
}

// Source is the view of published objects a snapshot is taken from and
// restored into. *publisher.Publisher implements it.
type Source interface {
	RegisteredObjects() map[string]meta.Object
	TypeOf(obj meta.Object) (*meta.Type, bool)
	SetProperty(obj meta.Object, index int, value any) error
}

// Capture snapshots the writable properties of every registered object.
// Object-valued properties are skipped. Must run on the publisher's loop.
func Capture(src Source) *State {
	state := &State{Version: StateVersion, Objects: make(map[string]map[string]any)}
	for id, obj := range src.RegisteredObjects() {
		typ, ok := src.TypeOf(obj)
		if !ok {
			continue
		}
		props := make(map[string]any)
		for _, prop := range typ.Properties() {
			if !prop.Writable() || prop.Read == nil || prop.Type.Kind == meta.KindObject {
				continue
			}
			props[prop.Name] = prop.Read(obj)
		}
		if len(props) > 0 {
			state.Objects[id] = props
		}
	}
	return state
}

// Restore writes a snapshot back. Properties apply in declaration order;
// every failure is collected and the rest still apply.
func Restore(src Source, state *State) error {
	if state == nil {
		return nil
	}
	if state.Version != StateVersion {
		return fmt.Errorf("%w: %d", ErrVersion, state.Version)
	}

	registered := src.RegisteredObjects()
	ids := make([]string, 0, len(state.Objects))
	for id := range state.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var err error
	for _, id := range ids {
		obj, ok := registered[id]
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%w: %s", ErrUnknownObject, id))
			continue
		}
		typ, ok := src.TypeOf(obj)
		if !ok {
			err = multierr.Append(err, fmt.Errorf("%w: %s has no type", ErrUnknownObject, id))
			continue
		}
		values := state.Objects[id]
		for name := range values {
			if typ.PropertyByName(name) == nil {
				err = multierr.Append(err, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, id, name))
			}
		}
		for _, prop := range typ.Properties() {
			v, ok := values[prop.Name]
			if !ok {
				continue
			}
			if serr := src.SetProperty(obj, prop.Index, v); serr != nil {
				err = multierr.Append(err, fmt.Errorf("restore %s: %w", id, serr))
			}
		}
	}
	return err
}

// StateStore manages persistence of a State to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a new state store.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string { return s.path }

// Save persists the state to disk.
func (s *StateStore) Save(state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *StateStore) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &State{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return state, nil
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
