// Package chat negotiates direct peer-to-peer chat sessions. A client holds
// at most one undecided inbound invitation; any further suitor is rejected.
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"buddyim/models"
	"buddyim/protocol"
)

type State int

const (
	Idle State = iota
	InboundPending
	// Dialing reserves the slot while an outbound invitation is unanswered.
	Dialing
	InSession
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InboundPending:
		return "inbound pending"
	case Dialing:
		return "dialing"
	case InSession:
		return "in session"
	}
	return "unknown"
}

var (
	ErrNoPending      = errors.New("no pending connection")
	ErrPendingInbound = errors.New("accept or reject the incoming chat first")
	ErrBusy           = errors.New("chat already in progress")
	ErrNotFound       = errors.New("buddy not found")
	ErrOffline        = errors.New("buddy is offline")
	ErrUnreachable    = errors.New("unable to connect to buddy")
	ErrRejected       = errors.New("buddy rejected chat")
	ErrProtocol       = errors.New("unexpected chat response")
	ErrClosed         = errors.New("chat negotiator closed")
)

// Random chat ports are drawn from this range when none is configured.
const (
	minRandomPort = 20000
	maxRandomPort = 65000
)

const dialTimeout = 10 * time.Second

// Lookup resolves a buddy id against the latest buddy-status view.
type Lookup interface {
	Find(id string) (models.BuddyStatus, bool)
}

type Handlers struct {
	// Incoming runs when an invitation takes the pending slot.
	Incoming func(remote string)
	// Message runs on the drain goroutine for each inbound chat line.
	Message func(line string)
	// Ended runs after a session is over and the state is back to Idle.
	Ended func(s *Session)
}

type Negotiator struct {
	listener net.Listener
	handlers Handlers

	mu      sync.Mutex
	state   State
	pending net.Conn
	session *Session
	closed  bool
}

// Listen binds the chat listener. Port 0 picks a random port in
// [20000, 65000], retrying a few times on collisions.
func Listen(host string, port int, handlers Handlers) (*Negotiator, error) {
	var (
		listener net.Listener
		err      error
	)
	if port != 0 {
		listener, err = net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	} else {
		for attempt := 0; attempt < 10; attempt++ {
			p := minRandomPort + rand.Intn(maxRandomPort-minRandomPort+1)
			listener, err = net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
			if err == nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return NewNegotiator(listener, handlers), nil
}

func NewNegotiator(listener net.Listener, handlers Handlers) *Negotiator {
	return &Negotiator{listener: listener, handlers: handlers}
}

// Port is the chat port to publish in presence updates.
func (n *Negotiator) Port() int {
	return n.listener.Addr().(*net.TCPAddr).Port
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Serve accepts inbound invitations until ctx is cancelled or Close is called.
func (n *Negotiator) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { n.Close() })
	defer stop()

	log.Printf("Chat listening on port %d", n.Port())
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Error accepting chat connection: %v", err)
			continue
		}
		n.arrive(conn)
	}
}

// arrive takes the pending slot for conn, or turns conn away when the slot
// is not free.
func (n *Negotiator) arrive(conn net.Conn) {
	n.mu.Lock()
	free := n.state == Idle && !n.closed
	if free {
		n.pending = conn
		n.state = InboundPending
	}
	n.mu.Unlock()

	remote := conn.RemoteAddr().String()
	if !free {
		log.Printf("Rejecting chat request from %s: busy", remote)
		protocol.WriteLine(conn, protocol.ChatReject)
		conn.Close()
		return
	}

	log.Printf("Incoming chat request from %s", remote)
	if n.handlers.Incoming != nil {
		n.handlers.Incoming(remote)
	}
}

// AcceptIncoming answers the pending invitation with ACCEPT and starts the session.
func (n *Negotiator) AcceptIncoming() (*Session, error) {
	n.mu.Lock()
	if n.state != InboundPending {
		n.mu.Unlock()
		return nil, ErrNoPending
	}
	conn := n.pending
	n.pending = nil
	n.state = InSession
	n.mu.Unlock()

	if err := protocol.WriteLine(conn, protocol.ChatAccept); err != nil {
		conn.Close()
		n.setIdle()
		return nil, fmt.Errorf("send accept: %w", err)
	}
	return n.startSession(conn, nil), nil
}

// RejectIncoming answers the pending invitation with REJECT and closes it.
func (n *Negotiator) RejectIncoming() error {
	n.mu.Lock()
	if n.state != InboundPending {
		n.mu.Unlock()
		return ErrNoPending
	}
	conn := n.pending
	n.pending = nil
	n.state = Idle
	n.mu.Unlock()

	protocol.WriteLine(conn, protocol.ChatReject)
	return conn.Close()
}

// Dial invites buddyID, as found in view, to a chat.
func (n *Negotiator) Dial(ctx context.Context, buddyID string, view Lookup) (*Session, error) {
	n.mu.Lock()
	switch {
	case n.closed:
		n.mu.Unlock()
		return nil, ErrClosed
	case n.state == InboundPending:
		n.mu.Unlock()
		return nil, ErrPendingInbound
	case n.state != Idle:
		n.mu.Unlock()
		return nil, ErrBusy
	}

	buddy, ok := view.Find(buddyID)
	if !ok {
		n.mu.Unlock()
		return nil, ErrNotFound
	}
	if !buddy.Online() {
		n.mu.Unlock()
		return nil, ErrOffline
	}
	n.state = Dialing
	n.mu.Unlock()

	conn, reader, err := n.invite(ctx, buddy)
	if err != nil {
		n.setIdle()
		return nil, err
	}
	return n.startSession(conn, reader), nil
}

// invite connects to buddy and waits for exactly one answer line.
func (n *Negotiator) invite(ctx context.Context, buddy models.BuddyStatus) (net.Conn, *bufio.Reader, error) {
	if _, err := strconv.Atoi(buddy.Port); err != nil {
		return nil, nil, fmt.Errorf("%w: bad port %q", ErrUnreachable, buddy.Port)
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(buddy.Address, buddy.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	reader := bufio.NewReader(conn)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	line, err := protocol.ReadLine(reader)
	stop()

	switch {
	case err != nil || line == protocol.ChatReject:
		conn.Close()
		return nil, nil, ErrRejected
	case line != protocol.ChatAccept:
		conn.Close()
		return nil, nil, fmt.Errorf("%w: %q", ErrProtocol, line)
	}
	return conn, reader, nil
}

func (n *Negotiator) startSession(conn net.Conn, reader *bufio.Reader) *Session {
	s := newSession(conn, reader)

	n.mu.Lock()
	n.state = InSession
	n.session = s
	closed := n.closed
	n.mu.Unlock()

	log.Printf("Chat session %s started with %s", s.ID, s.Peer)
	go s.drain(n.handlers.Message, n.endSession)
	if closed {
		s.close()
	}
	return s
}

func (n *Negotiator) endSession(s *Session) {
	n.mu.Lock()
	if n.session == s {
		n.session = nil
		n.state = Idle
	}
	n.mu.Unlock()

	log.Printf("Chat session %s ended", s.ID)
	if n.handlers.Ended != nil {
		go n.handlers.Ended(s)
	}
}

func (n *Negotiator) setIdle() {
	n.mu.Lock()
	n.state = Idle
	n.mu.Unlock()
}

// Close stops the listener and closes any pending or active connection.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	pending, session := n.pending, n.session
	n.pending = nil
	if pending != nil {
		n.state = Idle
	}
	n.mu.Unlock()

	if pending != nil {
		pending.Close()
	}
	if session != nil {
		session.close()
	}
	return n.listener.Close()
}
