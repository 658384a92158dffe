package models

// Status is a user's network status as carried on the wire ("100 ONLINE").
type Status int

const (
	StatusOnline  Status = 100
	StatusOffline Status = 101
	StatusAway    Status = 102
)

var statusWords = map[Status]string{
	StatusOnline:  "ONLINE",
	StatusOffline: "OFFLINE",
	StatusAway:    "AWAY",
}

// ParseStatus accepts only the exact code/word pairs of the fixed vocabulary.
func ParseStatus(code, word string) (Status, bool) {
	for s, w := range statusWords {
		if w == word && s.Code() == code {
			return s, true
		}
	}
	return 0, false
}

func (s Status) Valid() bool {
	_, ok := statusWords[s]
	return ok
}

// Code returns the numeric part, e.g. "100".
func (s Status) Code() string {
	switch s {
	case StatusOnline:
		return "100"
	case StatusOffline:
		return "101"
	case StatusAway:
		return "102"
	}
	return ""
}

// Word returns the textual part, e.g. "ONLINE".
func (s Status) Word() string {
	return statusWords[s]
}

func (s Status) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return s.Code() + " " + s.Word()
}

type User struct {
	ID      string
	Buddies []string
}

// PresenceRecord is the last published state of one identity.
type PresenceRecord struct {
	Status   Status
	Address  string // source address of the publishing datagram
	ChatPort int
}

// BuddyStatus is one line of a GET reply as seen by the client.
// Address and Port stay strings: "unknown" is a legal value for both.
type BuddyStatus struct {
	ID         string
	StatusCode string
	StatusWord string
	Address    string
	Port       string
}

// Status returns the combined status text, e.g. "100 ONLINE".
func (b BuddyStatus) Status() string {
	return b.StatusCode + " " + b.StatusWord
}

func (b BuddyStatus) Online() bool {
	return b.StatusCode == StatusOnline.Code()
}

func (b BuddyStatus) String() string {
	return b.ID + "\t" + b.Status() + "\t" + b.Address + "\t" + b.Port
}
