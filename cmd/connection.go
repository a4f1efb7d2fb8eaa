// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/soar-avionics/sob/pkg/config"
)

const (
	bridgeDialTimeout      = 15 * time.Second
	bridgeHandshakeTimeout = 10 * time.Second
	passwordEnv            = "SOB_PASSWORD"
)

// ErrConnectionClosed is returned by reads after the bridge went away
var ErrConnectionClosed = errors.New("bus bridge closed")

// Connection is a byte link to the bus. A UART port satisfies it directly;
// a WebSocket bridge is adapted by bridgeConn.
type Connection interface {
	io.ReadWriteCloser
}

// OpenConnection opens the configured link and returns it with a
// one-line description for banners. A bridge URL takes precedence over a
// serial port.
func OpenConnection(ctx context.Context, link config.LinkConfig) (Connection, string, error) {
	if err := link.Validate(); err != nil {
		return nil, "", err
	}

	if link.URL == "" {
		port, err := openUART(link.Port, link.Baud)
		if err != nil {
			return nil, "", err
		}
		return port, fmt.Sprintf("Serial: %s @ %d baud", link.Port, link.Baud), nil
	}

	var password string
	if link.Username != "" {
		pw, err := bridgePassword(os.Stdin)
		if err != nil {
			return nil, "", err
		}
		password = pw
	}
	conn, err := dialBridge(ctx, link, password)
	if err != nil {
		return nil, "", err
	}
	return conn, fmt.Sprintf("WebSocket: %s", link.URL), nil
}

// openUART opens a port at 8N1
func openUART(name string, baud int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return port, nil
}

// bridgeRequestHeader builds the upgrade request headers, with Basic auth when
// both credentials are present
func bridgeRequestHeader(username, password string) http.Header {
	req := &http.Request{Header: http.Header{}}
	if username != "" && password != "" {
		req.SetBasicAuth(username, password)
	}
	return req.Header
}

func dialBridge(ctx context.Context, link config.LinkConfig, password string) (*bridgeConn, error) {
	u, err := url.Parse(link.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid link.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported link.url scheme %q (want ws or wss)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: bridgeHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: link.NoSSLVerify}
	}

	ctx, cancel := context.WithTimeout(ctx, bridgeDialTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(ctx, link.URL, bridgeRequestHeader(link.Username, password))
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial bridge (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial bridge: %w", err)
	}
	return &bridgeConn{ws: ws}, nil
}

// bridgeConn turns binary WebSocket messages into a byte stream. A message
// may hold several frames or part of one; text messages are ignored.
type bridgeConn struct {
	ws      *websocket.Conn
	pending []byte
	readErr error

	// gorilla allows one writer at a time
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (b *bridgeConn) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		if b.readErr != nil {
			return 0, b.readErr
		}
		kind, data, err := b.ws.ReadMessage()
		if err != nil {
			b.readErr = bridgeReadError(err)
			return 0, b.readErr
		}
		if kind == websocket.BinaryMessage {
			b.pending = data
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func bridgeReadError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}
	return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
}

func (b *bridgeConn) Write(p []byte) (int, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bridgeConn) Close() error {
	b.closeOnce.Do(func() { b.closeErr = b.ws.Close() })
	return b.closeErr
}

// bridgePassword returns $SOB_PASSWORD, or prompts on the terminal. When
// stdin is not a terminal the first line is read instead.
func bridgePassword(in *os.File) (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	if fd := int(in.Fd()); term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
