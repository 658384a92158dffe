package chat

import (
	"bufio"
	"errors"
	"log"
	"net"
	"strings"
	"sync"

	"buddyim/protocol"

	"github.com/google/uuid"
)

var ErrMultiline = errors.New("message must be a single line")

// Session is an accepted chat connection. A drain goroutine delivers inbound
// lines until the connection closes; Send writes outbound lines.
type Session struct {
	ID   string
	Peer string

	conn      net.Conn
	reader    *bufio.Reader
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// newSession takes over conn. reader must be the one that read the
// handshake, if any, so no buffered line is lost.
func newSession(conn net.Conn, reader *bufio.Reader) *Session {
	if reader == nil {
		reader = bufio.NewReader(conn)
	}
	return &Session{
		ID:     uuid.NewString(),
		Peer:   conn.RemoteAddr().String(),
		conn:   conn,
		reader: reader,
		done:   make(chan struct{}),
	}
}

// drain reads inbound lines until the peer closes or the session is quit.
// onLine runs on the drain goroutine; ended runs after the last line.
func (s *Session) drain(onLine func(string), ended func(*Session)) {
	for {
		line, err := protocol.ReadLine(s.reader)
		if err != nil {
			break
		}
		if onLine != nil {
			onLine(line)
		}
	}
	s.close()
	ended(s)
	close(s.done)
}

// Send writes line verbatim, newline-terminated.
func (s *Session) Send(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return ErrMultiline
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return protocol.WriteLine(s.conn, line)
}

// Quit closes the connection from this side and waits for the drain
// goroutine to observe it.
func (s *Session) Quit() {
	s.close()
	<-s.done
}

// Done is closed once the session is over, whichever side ended it.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil {
			log.Printf("Error closing chat session %s: %v", s.ID, err)
		}
	})
}
