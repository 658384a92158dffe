package db

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrInvalidID  = errors.New("invalid user id")
	ErrUserExists = errors.New("user already exists")
	ErrNoSuchUser = errors.New("no such user")
	ErrSelfBuddy  = errors.New("user cannot be its own buddy")
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store is the durable account and buddy-list record.
type Store interface {
	UserExists(id string) (bool, error)
	// CreateUser fails with ErrInvalidID or ErrUserExists. Creation of one id is atomic.
	CreateUser(id string) error
	// GetBuddies returns the buddy list in insertion order, empty for unknown ids.
	GetBuddies(id string) ([]string, error)
	// UpdateBuddies adds or removes target in owner's list. Adding an existing
	// buddy or removing an absent one is a no-op.
	UpdateBuddies(add bool, owner, target string) error
	Count() (int, error)
	Close() error
}

// Open returns the store for backend rooted at path: a data directory for
// BackendFile, a database file for BackendSQLite.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(path)
	case BackendSQLite:
		return New(path)
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}

// ValidID reports whether id can name an account. Ids are single wire tokens
// and must be usable as a file name.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00 \t\r\n")
}

// ownerLocks serializes read-modify-write cycles per buddy-list owner.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*sync.Mutex)}
}

func (o *ownerLocks) lock(owner string) func() {
	o.mu.Lock()
	l, ok := o.locks[owner]
	if !ok {
		l = &sync.Mutex{}
		o.locks[owner] = l
	}
	o.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// applyEdit returns the edited list and whether it changed.
func applyEdit(buddies []string, add bool, target string) ([]string, bool) {
	for i, b := range buddies {
		if b != target {
			continue
		}
		if add {
			return buddies, false
		}
		return append(buddies[:i:i], buddies[i+1:]...), true
	}
	if add {
		return append(buddies, target), true
	}
	return buddies, false
}

func checkEdit(s Store, add bool, owner, target string) error {
	if !ValidID(owner) || !ValidID(target) {
		return ErrInvalidID
	}
	if owner == target {
		return ErrSelfBuddy
	}
	exists, err := s.UserExists(owner)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoSuchUser
	}
	if add {
		exists, err = s.UserExists(target)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNoSuchUser
		}
	}
	return nil
}
