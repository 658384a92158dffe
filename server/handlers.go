package server

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"buddyim/db"
	"buddyim/metrics"
	"buddyim/models"
	"buddyim/protocol"
)

// handleConnection serves exactly one request line and closes the connection.
func (s *Server) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	s.active.Add(1)
	metrics.ActiveConnections.Inc()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic serving %s: %v\n%s", remoteAddr, r, debug.Stack())
		}
		conn.Close()
		metrics.ActiveConnections.Dec()
		s.active.Add(-1)
	}()

	if s.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	line, err := protocol.ReadLine(bufio.NewReader(conn))
	if err != nil {
		if err != io.EOF {
			log.Printf("Error reading from %s: %v", remoteAddr, err)
		}
		return
	}

	log.Printf("Received from %s: %q", remoteAddr, line)

	response := s.handleRequest(line)
	if err := protocol.WriteLine(conn, response); err != nil {
		log.Printf("Error writing to %s: %v", remoteAddr, err)
	}
}

// handleRequest maps one directory request line to its response line.
func (s *Server) handleRequest(line string) string {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		metrics.DirectoryRequests.WithLabelValues("tcp", "unknown", protocol.CodeInvalid).Inc()
		return protocol.CodeInvalid
	}

	var response string
	switch req.Verb {
	case protocol.VerbRegister:
		response = s.handleRegister(req.Arg(0))
	case protocol.VerbAdd:
		response = s.handleBuddyEdit(true, req.Arg(0), req.Arg(1))
	case protocol.VerbDelete:
		response = s.handleBuddyEdit(false, req.Arg(0), req.Arg(1))
	default:
		// SET and GET belong to the datagram transport.
		response = protocol.CodeInvalid
	}

	metrics.DirectoryRequests.WithLabelValues("tcp", req.Verb, response).Inc()
	return response
}

func (s *Server) handleRegister(id string) string {
	if id == "" {
		return protocol.CodeInvalid
	}

	exists, err := s.store.UserExists(id)
	if err != nil {
		log.Printf("Register error: %v", err)
		return protocol.CodeInvalid
	}
	if exists {
		return protocol.CodeUserExists
	}

	err = s.store.CreateUser(id)
	switch {
	case err == nil:
		log.Printf("Registered user %s", id)
		return protocol.CodeOK
	case errors.Is(err, db.ErrUserExists):
		return protocol.CodeUserExists
	case errors.Is(err, db.ErrInvalidID):
		return protocol.CodeInvalid
	default:
		log.Printf("Register error: %v", err)
		return protocol.CodeInvalid
	}
}

func (s *Server) handleBuddyEdit(add bool, owner, target string) string {
	if owner == "" || target == "" {
		return protocol.CodeInvalid
	}

	for _, id := range []string{owner, target} {
		exists, err := s.store.UserExists(id)
		if err != nil {
			log.Printf("Buddy edit error: %v", err)
			return protocol.CodeInvalid
		}
		if !exists {
			return protocol.CodeNoSuchUser
		}
	}

	if owner == target {
		return protocol.CodeInvalid
	}

	err := s.store.UpdateBuddies(add, owner, target)
	switch {
	case err == nil:
		return protocol.CodeOK
	case errors.Is(err, db.ErrNoSuchUser):
		return protocol.CodeNoSuchUser
	default:
		log.Printf("Buddy edit error: %v", err)
		return protocol.CodeInvalid
	}
}

// handleDatagram serves one presence datagram. Malformed input is dropped:
// the datagram transport has no error channel.
func (s *Server) handleDatagram(packetConn net.PacketConn, addr net.Addr, payload string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic serving datagram from %s: %v\n%s", addr, r, debug.Stack())
		}
	}()

	req, err := protocol.ParseRequest(payload)
	if err != nil {
		metrics.DatagramsDropped.WithLabelValues("malformed").Inc()
		return
	}

	switch req.Verb {
	case protocol.VerbSet:
		s.handleSet(req, addr)
	case protocol.VerbGet:
		s.handleGet(packetConn, addr, req.Arg(0))
	default:
		metrics.DatagramsDropped.WithLabelValues("malformed").Inc()
	}
}

func (s *Server) handleSet(req *protocol.Request, addr net.Addr) {
	id := req.Arg(0)
	port, err := strconv.Atoi(req.Arg(3))
	if err != nil {
		metrics.DatagramsDropped.WithLabelValues("malformed").Inc()
		return
	}
	status, ok := models.ParseStatus(req.Arg(1), req.Arg(2))
	if !ok || !s.directory.Publish(id, status, sourceIP(addr), port) {
		metrics.DatagramsDropped.WithLabelValues("invalid").Inc()
		return
	}

	metrics.DirectoryRequests.WithLabelValues("udp", protocol.VerbSet, protocol.CodeOK).Inc()
	metrics.PresenceRecords.Set(float64(s.directory.Len()))
}

func (s *Server) handleGet(packetConn net.PacketConn, addr net.Addr, id string) {
	exists, err := s.store.UserExists(id)
	if err != nil {
		log.Printf("Get error: %v", err)
	}
	if err != nil || !exists {
		metrics.DatagramsDropped.WithLabelValues("unknown_user").Inc()
		return
	}

	reply, err := s.buddyReply(id)
	if err != nil {
		log.Printf("Get error: %v", err)
		return
	}

	if _, err := packetConn.WriteTo([]byte(reply), addr); err != nil {
		log.Printf("Error writing datagram to %s: %v", addr, err)
		return
	}
	metrics.DirectoryRequests.WithLabelValues("udp", protocol.VerbGet, protocol.CodeOK).Inc()
}

// buddyReply renders one line per buddy of id, newline-joined.
func (s *Server) buddyReply(id string) (string, error) {
	buddies, err := s.store.GetBuddies(id)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(buddies))
	for _, buddy := range buddies {
		status := protocol.UnknownBuddy(buddy)
		if rec, ok := s.directory.Lookup(buddy); ok {
			status = models.BuddyStatus{
				ID:         buddy,
				StatusCode: rec.Status.Code(),
				StatusWord: rec.Status.Word(),
				Address:    rec.Address,
				Port:       strconv.Itoa(rec.ChatPort),
			}
		}
		lines = append(lines, protocol.FormatBuddyLine(status))
	}
	return strings.Join(lines, "\n"), nil
}
