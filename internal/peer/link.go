// Package peer holds the live connection state of a node: one Link per
// established TCP stream and the Table that indexes them.
//
// The Table is the only structure shared between the accept loop, the
// per-link receive loops and the console. Every read and write of it happens
// under a single mutex; socket I/O never does.
package peer

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDuplicateConnection = errors.New("peer: duplicate connection")
	ErrInvalidIndex        = errors.New("peer: invalid connection id")
	ErrSocketIO            = errors.New("peer: socket i/o error")
)

// Link is one established TCP connection to a remote node.
// Two links with the same Key are the same logical peer.
type Link struct {
	ID      uuid.UUID
	IP      string
	Port    int
	Inbound bool
	Since   time.Time

	conn      net.Conn
	closeOnce sync.Once
	closeErr  error
}

// NewLink wraps conn as a link to ip:port.
func NewLink(conn net.Conn, ip string, port int, inbound bool) *Link {
	return &Link{
		ID:      uuid.New(),
		IP:      ip,
		Port:    port,
		Inbound: inbound,
		Since:   time.Now(),
		conn:    conn,
	}
}

// FromConn wraps conn, taking the remote endpoint from conn.RemoteAddr.
func FromConn(conn net.Conn, inbound bool) (*Link, error) {
	ip, port, err := SplitAddr(conn.RemoteAddr())
	if err != nil {
		return nil, err
	}
	return NewLink(conn, ip, port, inbound), nil
}

// Key returns the (IP, port) identity of the link.
func (l *Link) Key() string { return Key(l.IP, l.Port) }

// Addr returns the remote endpoint as host:port.
func (l *Link) Addr() string { return l.Key() }

// Conn exposes the underlying socket for reading. Only the receive loop of
// the link reads from it.
func (l *Link) Conn() net.Conn { return l.conn }

// Write sends msg as-is. Failures wrap ErrSocketIO.
func (l *Link) Write(msg []byte) error {
	if _, err := l.conn.Write(msg); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrSocketIO, l.Addr(), err)
	}
	return nil
}

// Close releases the socket. Only the first call closes it; the result of
// that call is returned to every caller.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
	})
	return l.closeErr
}

func (l *Link) String() string {
	dir := "out"
	if l.Inbound {
		dir = "in"
	}
	return fmt.Sprintf("%s(%s)", l.Addr(), dir)
}

// Key formats an (IP, port) pair the way links are keyed in a Table.
func Key(ip string, port int) string {
	return net.JoinHostPort(ip, strconv.Itoa(port))
}

// SplitAddr extracts IP and port from a TCP address.
func SplitAddr(addr net.Addr) (string, int, error) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String(), tcp.Port, nil
	}
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "", 0, fmt.Errorf("peer: remote address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("peer: remote port %q: %w", portStr, err)
	}
	return host, port, nil
}
