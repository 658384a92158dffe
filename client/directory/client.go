// Package directory talks to the directory server: registration and buddy
// edits over TCP, presence publish and buddy-status polling over UDP.
package directory

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"buddyim/protocol"
)

// dialTimeout bounds only the connect; the exchange itself has no deadline.
const dialTimeout = 10 * time.Second

type Client struct {
	TCPAddr string
	UDPAddr string
}

func NewClient(tcpAddr, udpAddr string) *Client {
	return &Client{TCPAddr: tcpAddr, UDPAddr: udpAddr}
}

// Register returns the server's response line verbatim.
func (c *Client) Register(id string) (string, error) {
	return c.request(protocol.FormatRequest(protocol.VerbRegister, id))
}

func (c *Client) AddBuddy(owner, buddy string) (string, error) {
	return c.request(protocol.FormatRequest(protocol.VerbAdd, owner, buddy))
}

func (c *Client) DeleteBuddy(owner, buddy string) (string, error) {
	return c.request(protocol.FormatRequest(protocol.VerbDelete, owner, buddy))
}

// request sends one line on a fresh connection and reads one line back.
func (c *Client) request(line string) (string, error) {
	conn, err := net.DialTimeout("tcp", c.TCPAddr, dialTimeout)
	if err != nil {
		return "", fmt.Errorf("connection failed: %w", err)
	}
	defer conn.Close()

	if err := protocol.WriteLine(conn, line); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	response, err := protocol.ReadLine(bufio.NewReader(conn))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return response, nil
}
