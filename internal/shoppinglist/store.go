package shoppinglist

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/Bache94/ListeByBache/internal/logging"
	"github.com/google/uuid"
)

// Store is the ordered local list. All methods are safe for concurrent use.
// Listeners run synchronously after the lock is released.
type Store struct {
	mu        sync.Mutex
	items     []Item
	path      string
	logger    *logging.Logger
	listeners []func(Change)
}

// NewStore loads the list from path if it exists. An empty path keeps the
// list in memory only.
func NewStore(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Store{path: path, logger: logger, items: []Item{}}
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	var items []Item
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = items[i].Normalize()
	}
	s.items = items
	return s, nil
}

func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

func (s *Store) Item(id uuid.UUID) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return Item{}, false
}

// OnLocalChange registers fn for user-originated changes.
func (s *Store) OnLocalChange(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) Add(it Item) {
	it = it.Normalize()
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	s.mutate(Change{Kind: ChangeAdd, Item: &it}, true)
}

func (s *Store) Remove(id uuid.UUID) {
	s.mutate(Change{Kind: ChangeRemove, ID: id}, true)
}

// Toggle flips the checked flag. Unknown ids are ignored and emit nothing.
func (s *Store) Toggle(id uuid.UUID) {
	s.mutate(Change{Kind: ChangeToggle, ID: id}, true)
}

func (s *Store) ClearChecked() {
	s.mutate(Change{Kind: ChangeClearChecked}, true)
}

func (s *Store) ReplaceAll(items []Item) {
	s.mutate(Change{Kind: ChangeReplaceAll, Items: items}, true)
}

// ApplyExternal applies a change that came from another device. It persists
// but never notifies listeners.
func (s *Store) ApplyExternal(c Change) {
	s.mutate(c, false)
}

func (s *Store) mutate(c Change, notify bool) {
	s.mu.Lock()
	applied := s.applyLocked(c)
	if !applied {
		s.mu.Unlock()
		return
	}
	if err := s.saveLocked(); err != nil {
		s.logger.Warnf("persist shopping list: %v", err)
	}
	var listeners []func(Change)
	if notify {
		listeners = append(listeners, s.listeners...)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(c)
	}
}

func (s *Store) applyLocked(c Change) bool {
	switch c.Kind {
	case ChangeAdd:
		if c.Item == nil {
			return false
		}
		s.items = append(s.items, *c.Item)
	case ChangeRemove:
		i := s.indexLocked(c.ID)
		if i < 0 {
			return false
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
	case ChangeToggle:
		i := s.indexLocked(c.ID)
		if i < 0 {
			return false
		}
		s.items[i].Checked = !s.items[i].Checked
	case ChangeClearChecked:
		kept := s.items[:0]
		for _, it := range s.items {
			if !it.Checked {
				kept = append(kept, it)
			}
		}
		s.items = kept
	case ChangeReplaceAll:
		items := make([]Item, 0, len(c.Items))
		for _, it := range c.Items {
			items = append(items, it.Normalize())
		}
		s.items = items
	default:
		return false
	}
	return true
}

func (s *Store) indexLocked(id uuid.UUID) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) saveLocked() error {
	if s.path == "" {
		return nil
	}
	b, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
