package ipc

import (
	"fmt"
	"net"
	"time"
)

// Client dials the daemon socket for one request/response round trip per
// call. It holds no connection between calls.
type Client struct {
	path    string
	timeout time.Duration
}

func NewClient(socketPath string) *Client {
	return &Client{path: socketPath, timeout: 30 * time.Second}
}

func (c *Client) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Available reports whether something accepts on the socket. The CLI uses
// it to choose between asking the daemon and touching files directly.
func (c *Client) Available() bool {
	conn, err := net.DialTimeout("unix", c.path, 500*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// SendCommand marshals params into a request and performs one round trip.
func (c *Client) SendCommand(command string, params any) (*Response, error) {
	req, err := NewRequest(command, params)
	if err != nil {
		return nil, err
	}
	return c.Send(req)
}

func (c *Client) Send(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.path, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w (is it running? start with: overseer daemon)", c.path, err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &resp, nil
}
