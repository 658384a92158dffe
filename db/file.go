package db

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const userFileExt = ".txt"

// FileStore keeps one file per user under <dir>/users. A user file holds the
// buddy list, one id per line; an empty file means no buddies.
type FileStore struct {
	dir   string
	locks *ownerLocks
}

func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "users")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create users dir: %w", err)
	}
	return &FileStore{dir: dir, locks: newOwnerLocks()}, nil
}

func (fs *FileStore) Close() error {
	return nil
}

func (fs *FileStore) userPath(id string) string {
	return filepath.Join(fs.dir, id+userFileExt)
}

func (fs *FileStore) UserExists(id string) (bool, error) {
	if !ValidID(id) {
		return false, nil
	}
	_, err := os.Stat(fs.userPath(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (fs *FileStore) CreateUser(id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	// O_EXCL makes concurrent registrations of the same id race safely.
	f, err := os.OpenFile(fs.userPath(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrUserExists
		}
		return fmt.Errorf("create user file: %w", err)
	}
	return f.Close()
}

func (fs *FileStore) GetBuddies(id string) ([]string, error) {
	if !ValidID(id) {
		return nil, nil
	}
	f, err := os.Open(fs.userPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var buddies []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			buddies = append(buddies, line)
		}
	}
	return buddies, scanner.Err()
}

func (fs *FileStore) UpdateBuddies(add bool, owner, target string) error {
	unlock := fs.locks.lock(owner)
	defer unlock()

	if err := checkEdit(fs, add, owner, target); err != nil {
		return err
	}

	buddies, err := fs.GetBuddies(owner)
	if err != nil {
		return err
	}
	buddies, changed := applyEdit(buddies, add, target)
	if !changed {
		return nil
	}
	return fs.writeBuddies(owner, buddies)
}

// writeBuddies replaces the owner's file through a rename so readers never
// observe a half-written list.
func (fs *FileStore) writeBuddies(owner string, buddies []string) error {
	tmp, err := os.CreateTemp(fs.dir, "."+owner+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, b := range buddies {
		w.WriteString(b)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), fs.userPath(owner))
}

func (fs *FileStore) Count() (int, error) {
	matches, err := filepath.Glob(filepath.Join(fs.dir, "*"+userFileExt))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}
