package chat

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"buddyim/models"
	"buddyim/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView map[string]models.BuddyStatus

func (v fakeView) Find(id string) (models.BuddyStatus, bool) {
	b, ok := v[id]
	return b, ok
}

type recorder struct {
	incoming chan string
	messages chan string
	ended    chan *Session
}

func newRecorder() *recorder {
	return &recorder{
		incoming: make(chan string, 4),
		messages: make(chan string, 16),
		ended:    make(chan *Session, 4),
	}
}

func (r *recorder) handlers() Handlers {
	return Handlers{
		Incoming: func(remote string) { r.incoming <- remote },
		Message:  func(line string) { r.messages <- line },
		Ended:    func(s *Session) { r.ended <- s },
	}
}

// startNegotiator serves a negotiator on a loopback port.
func startNegotiator(t *testing.T, rec *recorder) *Negotiator {
	t.Helper()
	n, err := Listen("127.0.0.1", 0, rec.handlers())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n.Port(), minRandomPort)
	assert.LessOrEqual(t, n.Port(), maxRandomPort)

	ctx, cancel := context.WithCancel(context.Background())
	go n.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		n.Close()
	})
	return n
}

func dialRaw(t *testing.T, n *Negotiator) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(n.Port()), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn, bufio.NewReader(conn)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	var zero T
	return zero
}

func onlineBuddy(id string, port int) models.BuddyStatus {
	return models.BuddyStatus{
		ID: id, StatusCode: "100", StatusWord: "ONLINE",
		Address: "127.0.0.1", Port: strconv.Itoa(port),
	}
}

func TestSecondSuitorRejected(t *testing.T) {
	rec := newRecorder()
	n := startNegotiator(t, rec)

	first, firstReader := dialRaw(t, n)
	receive(t, rec.incoming)
	assert.Equal(t, InboundPending, n.State())

	_, secondReader := dialRaw(t, n)
	line, err := protocol.ReadLine(secondReader)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatReject, line)
	_, err = protocol.ReadLine(secondReader)
	assert.Error(t, err, "rejected suitor is closed")

	assert.Equal(t, InboundPending, n.State(), "first suitor still pending")

	s, err := n.AcceptIncoming()
	require.NoError(t, err)
	line, err = protocol.ReadLine(firstReader)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatAccept, line)
	assert.Equal(t, InSession, n.State())

	require.NoError(t, protocol.WriteLine(first, "hi there"))
	assert.Equal(t, "hi there", receive(t, rec.messages))

	require.NoError(t, s.Send("hello back"))
	line, err = protocol.ReadLine(firstReader)
	require.NoError(t, err)
	assert.Equal(t, "hello back", line)

	assert.ErrorIs(t, s.Send("two\nlines"), ErrMultiline)

	s.Quit()
	assert.Equal(t, Idle, n.State())
	_, err = protocol.ReadLine(firstReader)
	assert.Error(t, err, "quit closes the connection")
	assert.Equal(t, s, receive(t, rec.ended))
}

func TestRejectIncoming(t *testing.T) {
	rec := newRecorder()
	n := startNegotiator(t, rec)

	assert.ErrorIs(t, n.RejectIncoming(), ErrNoPending)
	_, err := n.AcceptIncoming()
	assert.ErrorIs(t, err, ErrNoPending)

	_, reader := dialRaw(t, n)
	receive(t, rec.incoming)

	require.NoError(t, n.RejectIncoming())
	line, err := protocol.ReadLine(reader)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatReject, line)
	assert.Equal(t, Idle, n.State())
}

func TestPeerCloseEndsSession(t *testing.T) {
	rec := newRecorder()
	n := startNegotiator(t, rec)

	conn, _ := dialRaw(t, n)
	receive(t, rec.incoming)
	s, err := n.AcceptIncoming()
	require.NoError(t, err)

	conn.Close()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end after peer close")
	}
	assert.Equal(t, Idle, n.State())
}

func TestDialAccepted(t *testing.T) {
	aliceRec, bobRec := newRecorder(), newRecorder()
	alice := startNegotiator(t, aliceRec)
	bob := startNegotiator(t, bobRec)

	view := fakeView{"bob": onlineBuddy("bob", bob.Port())}

	go func() {
		receive(t, bobRec.incoming)
		bob.AcceptIncoming()
	}()

	s, err := alice.Dial(context.Background(), "bob", view)
	require.NoError(t, err)
	assert.Equal(t, InSession, alice.State())

	require.NoError(t, s.Send("ping"))
	assert.Equal(t, "ping", receive(t, bobRec.messages))

	s.Quit()
	assert.Equal(t, Idle, alice.State())

	// bob observes the close and frees its slot.
	receive(t, bobRec.ended)
	assert.Equal(t, Idle, bob.State())
}

func TestDialRejected(t *testing.T) {
	aliceRec, bobRec := newRecorder(), newRecorder()
	alice := startNegotiator(t, aliceRec)
	bob := startNegotiator(t, bobRec)

	go func() {
		receive(t, bobRec.incoming)
		bob.RejectIncoming()
	}()

	_, err := alice.Dial(context.Background(), "bob", fakeView{"bob": onlineBuddy("bob", bob.Port())})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, Idle, alice.State())
}

func TestDialPreconditions(t *testing.T) {
	rec := newRecorder()
	n := startNegotiator(t, rec)

	_, err := n.Dial(context.Background(), "ghost", fakeView{})
	assert.ErrorIs(t, err, ErrNotFound)

	away := onlineBuddy("bob", 1)
	away.StatusCode, away.StatusWord = "102", "AWAY"
	_, err = n.Dial(context.Background(), "bob", fakeView{"bob": away})
	assert.ErrorIs(t, err, ErrOffline)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	_, err = n.Dial(context.Background(), "bob", fakeView{"bob": onlineBuddy("bob", port)})
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, Idle, n.State())

	dialRaw(t, n)
	receive(t, rec.incoming)
	_, err = n.Dial(context.Background(), "bob", fakeView{"bob": onlineBuddy("bob", port)})
	assert.ErrorIs(t, err, ErrPendingInbound)
}

func TestDialProtocolViolation(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		protocol.WriteLine(conn, "MAYBE")
	}()

	n := startNegotiator(t, newRecorder())
	port := listener.Addr().(*net.TCPAddr).Port
	_, err = n.Dial(context.Background(), "bob", fakeView{"bob": onlineBuddy("bob", port)})
	assert.ErrorIs(t, err, ErrProtocol)
	assert.Equal(t, Idle, n.State())
}

func TestCloseRejectsNewArrivals(t *testing.T) {
	rec := newRecorder()
	n, err := Listen("127.0.0.1", 0, rec.handlers())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Serve(ctx) }()

	cancel()
	require.NoError(t, receive(t, done))

	_, err = n.Dial(context.Background(), "bob", fakeView{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSuitorRejectedDuringSession(t *testing.T) {
	rec := newRecorder()
	n := startNegotiator(t, rec)

	first, firstReader := dialRaw(t, n)
	receive(t, rec.incoming)
	s, err := n.AcceptIncoming()
	require.NoError(t, err)
	line, err := protocol.ReadLine(firstReader)
	require.NoError(t, err)
	require.Equal(t, protocol.ChatAccept, line)

	_, secondReader := dialRaw(t, n)
	line, err = protocol.ReadLine(secondReader)
	require.NoError(t, err)
	assert.Equal(t, protocol.ChatReject, line)
	assert.Equal(t, InSession, n.State())
	assert.Empty(t, rec.incoming, "busy suitor is not offered to the user")

	require.NoError(t, protocol.WriteLine(first, "still here"))
	assert.Equal(t, "still here", receive(t, rec.messages))
	s.Quit()
}
