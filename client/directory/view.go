package directory

import (
	"sync"

	"buddyim/models"
)

// View is the latest buddy-status snapshot. Every update replaces it whole:
// a buddy missing from the latest reply is gone from the view.
type View struct {
	mu      sync.RWMutex
	buddies []models.BuddyStatus
}

func (v *View) Replace(buddies []models.BuddyStatus) {
	v.mu.Lock()
	v.buddies = buddies
	v.mu.Unlock()
}

// Snapshot returns a copy of the current view.
func (v *View) Snapshot() []models.BuddyStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]models.BuddyStatus(nil), v.buddies...)
}

func (v *View) Find(id string) (models.BuddyStatus, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, b := range v.buddies {
		if b.ID == id {
			return b, true
		}
	}
	return models.BuddyStatus{}, false
}
