package directory

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"buddyim/models"
	"buddyim/protocol"
)

const DefaultPollInterval = 800 * time.Millisecond

// Poller publishes the local identity's presence and refreshes the buddy
// view, one SET/GET round trip per tick, while an identity is set.
type Poller struct {
	serverAddr string
	chatPort   int
	interval   time.Duration
	view       *View

	mu       sync.RWMutex
	identity string
	status   models.Status
	onUpdate func([]models.BuddyStatus)
}

func NewPoller(serverAddr string, chatPort int, interval time.Duration, view *View) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		serverAddr: serverAddr,
		chatPort:   chatPort,
		interval:   interval,
		view:       view,
		status:     models.StatusOnline,
	}
}

// SetIdentity switches the published identity and clears the view, which
// belonged to the previous one.
func (p *Poller) SetIdentity(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id != p.identity {
		p.view.Replace(nil)
	}
	p.identity = id
}

func (p *Poller) Identity() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

func (p *Poller) SetStatus(status models.Status) {
	p.mu.Lock()
	p.status = status
	p.mu.Unlock()
}

func (p *Poller) Status() models.Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// OnUpdate registers fn to run after each view replacement.
func (p *Poller) OnUpdate(fn func([]models.BuddyStatus)) {
	p.mu.Lock()
	p.onUpdate = fn
	p.mu.Unlock()
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	server, err := net.ResolveUDPAddr("udp", p.serverAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := p.poll(conn, server); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("Presence poll failed: %v", err)
		}
		timer.Reset(p.interval)
	}
}

// poll runs one tick. A reply that does not arrive within one interval
// counts as lost and leaves the previous view in place.
func (p *Poller) poll(conn *net.UDPConn, server *net.UDPAddr) error {
	p.mu.RLock()
	id, status := p.identity, p.status
	p.mu.RUnlock()
	if id == "" {
		return nil
	}

	if _, err := conn.WriteToUDP([]byte(protocol.FormatSet(id, status, p.chatPort)), server); err != nil {
		return err
	}
	if _, err := conn.WriteToUDP([]byte(protocol.FormatGet(id)), server); err != nil {
		return err
	}

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(p.interval))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	}
	if n == 0 {
		return nil
	}

	buddies := protocol.ParseBuddyReply(string(buf[:n]))

	// A reply that raced an identity switch describes the old identity.
	p.mu.Lock()
	if p.identity != id {
		p.mu.Unlock()
		return nil
	}
	p.view.Replace(buddies)
	fn := p.onUpdate
	p.mu.Unlock()
	if fn != nil {
		fn(buddies)
	}
	return nil
}
