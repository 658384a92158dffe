package server

import (
	"context"
	"errors"
	"log"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"buddyim/db"
	"buddyim/metrics"
	"buddyim/presence"
	"buddyim/protocol"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// maxTrackedSources bounds the per-source limiter table of the datagram loop.
const maxTrackedSources = 10000

type Server struct {
	store     db.Store
	directory *presence.Directory
	config    *ServerConfig
	slots     *semaphore.Weighted
	active    atomic.Int64

	// owned by the datagram loop
	limiters map[string]*rate.Limiter
}

type ServerConfig struct {
	TCPPort int
	UDPPort int
	// MaxConns bounds concurrently handled directory connections; 0 means unbounded.
	MaxConns int
	// DatagramRateLimit caps datagrams per second per source IP; 0 disables it.
	DatagramRateLimit int
	// ReadTimeout bounds the wait for a request line; 0 waits forever.
	ReadTimeout time.Duration
}

func New(store db.Store, directory *presence.Directory, config *ServerConfig) *Server {
	s := &Server{
		store:     store,
		directory: directory,
		config:    config,
		limiters:  make(map[string]*rate.Limiter),
	}
	if config.MaxConns > 0 {
		s.slots = semaphore.NewWeighted(int64(config.MaxConns))
	}
	return s
}

// Run binds both transports and serves them until ctx is cancelled or one
// of the listeners fails.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.TCPPort))
	if err != nil {
		return err
	}
	packetConn, err := net.ListenPacket("udp", ":"+strconv.Itoa(s.config.UDPPort))
	if err != nil {
		listener.Close()
		return err
	}

	log.Printf("Directory server started: tcp=%d udp=%d", s.config.TCPPort, s.config.UDPPort)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gCtx.Done()
		listener.Close()
		packetConn.Close()
		return nil
	})
	g.Go(func() error {
		return s.ServeTCP(listener)
	})
	g.Go(func() error {
		return s.ServeUDP(packetConn)
	})
	return g.Wait()
}

// ServeTCP accepts directory connections until the listener is closed.
// Each connection is served by its own goroutine.
func (s *Server) ServeTCP(listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Error accepting connection: %v", err)
			continue
		}

		if s.slots != nil {
			s.slots.Acquire(context.Background(), 1)
		}
		go func() {
			if s.slots != nil {
				defer s.slots.Release(1)
			}
			s.handleConnection(conn)
		}()
	}
}

// ServeUDP runs the presence loop until the packet conn is closed. Datagrams
// are handled one at a time, in arrival order.
func (s *Server) ServeUDP(packetConn net.PacketConn) error {
	buf := make([]byte, protocol.MaxDatagram)
	for {
		n, addr, err := packetConn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Error reading datagram: %v", err)
			continue
		}
		if n <= 0 {
			continue
		}
		if !s.allowDatagram(addr) {
			metrics.DatagramsDropped.WithLabelValues("rate_limited").Inc()
			continue
		}

		s.handleDatagram(packetConn, addr, string(buf[:n]))
	}
}

func (s *Server) allowDatagram(addr net.Addr) bool {
	if s.config.DatagramRateLimit <= 0 {
		return true
	}

	key := sourceIP(addr)
	limiter, ok := s.limiters[key]
	if !ok {
		if len(s.limiters) >= maxTrackedSources {
			s.limiters = make(map[string]*rate.Limiter)
		}
		limit := s.config.DatagramRateLimit
		limiter = rate.NewLimiter(rate.Limit(limit), limit*2)
		s.limiters[key] = limiter
	}
	return limiter.Allow()
}

// sourceIP returns the host part of a datagram source address.
func sourceIP(addr net.Addr) string {
	if udp, ok := addr.(*net.UDPAddr); ok {
		return udp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Stats returns server statistics as a formatted string
func (s *Server) Stats() string {
	accounts, err := s.store.Count()
	if err != nil {
		log.Printf("Failed to count accounts: %v", err)
	}
	return "accounts=" + strconv.Itoa(accounts) +
		",presence=" + strconv.Itoa(s.directory.Len()) +
		",connections=" + strconv.FormatInt(s.active.Load(), 10)
}
