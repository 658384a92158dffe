// Package presence holds the in-memory directory of last-known user status.
// Entries have no expiry: a record stays until the same id publishes again
// or the process restarts.
package presence

import (
	"sync"

	"buddyim/models"
)

type Directory struct {
	mu      sync.RWMutex
	records map[string]models.PresenceRecord
}

func NewDirectory() *Directory {
	return &Directory{records: make(map[string]models.PresenceRecord)}
}

// Publish overwrites the record for id. Invalid input is dropped and
// reported as false; the previous record, if any, is left untouched.
func (d *Directory) Publish(id string, status models.Status, address string, chatPort int) bool {
	if id == "" || !status.Valid() || chatPort <= 0 {
		return false
	}

	rec := models.PresenceRecord{Status: status, Address: address, ChatPort: chatPort}

	d.mu.Lock()
	d.records[id] = rec
	d.mu.Unlock()
	return true
}

func (d *Directory) Lookup(id string) (models.PresenceRecord, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[id]
	return rec, ok
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}
