package directory

import (
	"context"
	"net"
	"testing"
	"time"

	"buddyim/db"
	"buddyim/models"
	"buddyim/presence"
	"buddyim/protocol"
	"buddyim/server"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer runs a directory server on loopback and returns its TCP and UDP addresses.
func startServer(t *testing.T) (string, string) {
	t.Helper()
	store, err := db.NewFileStore(t.TempDir())
	require.NoError(t, err)
	srv := server.New(store, presence.NewDirectory(), &server.ServerConfig{})

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.ServeTCP(listener)
	go srv.ServeUDP(pc)
	t.Cleanup(func() {
		listener.Close()
		pc.Close()
		store.Close()
	})
	return listener.Addr().String(), pc.LocalAddr().String()
}

func TestClientRequests(t *testing.T) {
	tcpAddr, udpAddr := startServer(t)
	c := NewClient(tcpAddr, udpAddr)

	resp, err := c.Register("alice")
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeOK, resp)

	resp, err = c.Register("alice")
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeUserExists, resp)

	resp, err = c.AddBuddy("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeNoSuchUser, resp)

	_, err = c.Register("bob")
	require.NoError(t, err)

	resp, err = c.AddBuddy("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeOK, resp)

	resp, err = c.DeleteBuddy("alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, protocol.CodeOK, resp)
}

func TestClientConnectionFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	listener.Close()

	_, err = NewClient(addr, addr).Register("alice")
	assert.Error(t, err)
}

func TestViewReplace(t *testing.T) {
	var v View
	v.Replace([]models.BuddyStatus{{ID: "x"}, {ID: "y"}})
	_, ok := v.Find("y")
	assert.True(t, ok)

	v.Replace([]models.BuddyStatus{{ID: "x"}})
	_, ok = v.Find("y")
	assert.False(t, ok, "views are replaced, not merged")
	assert.Len(t, v.Snapshot(), 1)
}

func TestPollerUpdatesView(t *testing.T) {
	tcpAddr, udpAddr := startServer(t)
	c := NewClient(tcpAddr, udpAddr)
	for _, id := range []string{"alice", "bob"} {
		_, err := c.Register(id)
		require.NoError(t, err)
	}
	_, err := c.AddBuddy("alice", "bob")
	require.NoError(t, err)

	aliceView := &View{}
	alice := NewPoller(udpAddr, 9000, 20*time.Millisecond, aliceView)
	alice.SetIdentity("alice")

	bobView := &View{}
	bob := NewPoller(udpAddr, 9100, 20*time.Millisecond, bobView)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go alice.Run(ctx)
	go bob.Run(ctx)

	require.Eventually(t, func() bool {
		b, ok := aliceView.Find("bob")
		return ok && b.Address == protocol.Unknown
	}, 2*time.Second, 10*time.Millisecond)

	bob.SetIdentity("bob")
	require.Eventually(t, func() bool {
		b, ok := aliceView.Find("bob")
		return ok && b.Online() && b.Address == "127.0.0.1" && b.Port == "9100"
	}, 2*time.Second, 10*time.Millisecond)

	// bob has no buddies: his empty replies leave the previous view alone.
	bobView.Replace([]models.BuddyStatus{{ID: "prior"}})
	time.Sleep(150 * time.Millisecond)
	_, ok := bobView.Find("prior")
	assert.True(t, ok, "empty reply must not replace the view")

	bob.SetStatus(models.StatusAway)
	require.Eventually(t, func() bool {
		b, _ := aliceView.Find("bob")
		return b.Status() == "102 AWAY"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollerLostReplyKeepsView(t *testing.T) {
	// A socket that swallows every datagram stands in for a lost reply.
	sink, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer sink.Close()

	view := &View{}
	p := NewPoller(sink.LocalAddr().String(), 9000, 10*time.Millisecond, view)
	p.SetIdentity("alice")
	view.Replace([]models.BuddyStatus{{ID: "stale"}})
	updated := make(chan struct{}, 1)
	p.OnUpdate(func([]models.BuddyStatus) { updated <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, updated)
	_, ok := view.Find("stale")
	assert.True(t, ok)
}

func TestSetIdentityClearsView(t *testing.T) {
	view := &View{}
	p := NewPoller("127.0.0.1:1", 9000, 0, view)
	p.SetIdentity("alice")
	view.Replace([]models.BuddyStatus{{ID: "bob"}})

	p.SetIdentity("alice")
	assert.Len(t, view.Snapshot(), 1, "same identity keeps the view")

	p.SetIdentity("carol")
	assert.Empty(t, view.Snapshot())
	assert.Equal(t, "carol", p.Identity())
}

func TestReplyForPreviousIdentityIsDiscarded(t *testing.T) {
	fake, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer fake.Close()

	view := &View{}
	p := NewPoller(fake.LocalAddr().String(), 9000, time.Second, view)
	p.SetIdentity("alice")
	updated := make(chan struct{}, 1)
	p.OnUpdate(func([]models.BuddyStatus) { updated <- struct{}{} })

	// The identity switches while the GET for alice is in flight.
	go func() {
		buf := make([]byte, protocol.MaxDatagram)
		var from *net.UDPAddr
		for i := 0; i < 2; i++ {
			var readErr error
			if _, from, readErr = fake.ReadFromUDP(buf); readErr != nil {
				return
			}
		}
		p.SetIdentity("carol")
		fake.WriteToUDP([]byte("bob 100 ONLINE 10.0.0.1 7000"), from)
	}()

	conn, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, p.poll(conn, fake.LocalAddr().(*net.UDPAddr)))

	assert.Empty(t, view.Snapshot())
	assert.Empty(t, updated)
}
