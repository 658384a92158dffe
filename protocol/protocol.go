package protocol

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"

	"buddyim/models"
)

// Directory response codes.
const (
	CodeOK         = "200 OK"
	CodeInvalid    = "201 INVALID"
	CodeNoSuchUser = "202 NO SUCH USER"
	CodeUserExists = "203 USER EXISTS"
)

// Request verbs.
const (
	VerbRegister = "REG"
	VerbAdd      = "ADD"
	VerbDelete   = "DEL"
	VerbSet      = "SET"
	VerbGet      = "GET"
)

// Chat handshake lines.
const (
	ChatAccept = "ACCEPT"
	ChatReject = "REJECT"
)

// Unknown is the placeholder for address and port of a buddy with no presence record.
const Unknown = "unknown"

// MaxDatagram is the largest presence payload the directory reads.
const MaxDatagram = 2047

var (
	ErrInvalidPacket = errors.New("invalid packet format")
	ErrUnknownVerb   = errors.New("unknown verb")
)

// Request is one whitespace-tokenized request line.
type Request struct {
	Verb string
	Args []string
}

// Arg returns the i-th argument or "" when absent.
func (r *Request) Arg(i int) string {
	if i < len(r.Args) {
		return r.Args[i]
	}
	return ""
}

func ParseRequest(line string) (*Request, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrInvalidPacket
	}

	req := &Request{Verb: fields[0], Args: fields[1:]}
	switch req.Verb {
	case VerbRegister, VerbAdd, VerbDelete, VerbSet, VerbGet:
		return req, nil
	}
	return req, ErrUnknownVerb
}

func FormatRequest(verb string, args ...string) string {
	if len(args) == 0 {
		return verb
	}
	return verb + " " + strings.Join(args, " ")
}

func FormatSet(id string, status models.Status, chatPort int) string {
	return FormatRequest(VerbSet, id, status.Code(), status.Word(), strconv.Itoa(chatPort))
}

func FormatGet(id string) string {
	return FormatRequest(VerbGet, id)
}

// FormatBuddyLine renders one GET reply line: <id> <code> <word> <address> <port>.
func FormatBuddyLine(b models.BuddyStatus) string {
	return strings.Join([]string{b.ID, b.StatusCode, b.StatusWord, b.Address, b.Port}, " ")
}

// UnknownBuddy is the reply line used for a buddy that never published.
func UnknownBuddy(id string) models.BuddyStatus {
	return models.BuddyStatus{
		ID:         id,
		StatusCode: models.StatusOffline.Code(),
		StatusWord: models.StatusOffline.Word(),
		Address:    Unknown,
		Port:       Unknown,
	}
}

// ParseBuddyReply splits a GET reply into records. Parsing is lenient: missing
// tokens stay empty and blank lines are skipped.
func ParseBuddyReply(payload string) []models.BuddyStatus {
	var list []models.BuddyStatus
	for _, line := range strings.Split(payload, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		var b models.BuddyStatus
		dst := []*string{&b.ID, &b.StatusCode, &b.StatusWord, &b.Address, &b.Port}
		for i := 0; i < len(dst) && i < len(fields); i++ {
			*dst[i] = fields[i]
		}
		list = append(list, b)
	}
	return list
}

// ReadLine reads one newline-terminated line, dropping "\r".
// A line cut short by EOF is an error, not a line.
func ReadLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.ReplaceAll(line, "\r", "")
	return strings.TrimSuffix(line, "\n"), nil
}

func WriteLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}
