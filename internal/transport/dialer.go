package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/Operative-001/murmur/internal/peer"
)

// Dialer opens outbound links.
type Dialer struct {
	table   *peer.Table
	recv    *Receiver
	isSelf  SelfFunc
	timeout time.Duration
	log     *slog.Logger
}

// NewDialer creates a Dialer. A zero timeout leaves connect timing to the OS.
func NewDialer(table *peer.Table, recv *Receiver, isSelf SelfFunc, timeout time.Duration, logger *slog.Logger) *Dialer {
	if isSelf == nil {
		isSelf = func(string, int) bool { return false }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dialer{
		table:   table,
		recv:    recv,
		isSelf:  isSelf,
		timeout: timeout,
		log:     logger,
	}
}

// Connect dials ip:port, registers the link and starts its receive loop.
// ip must be an IP literal. If an inbound link from the same endpoint wins
// the race to the table, the dialed socket is closed and
// peer.ErrDuplicateConnection is returned.
func (d *Dialer) Connect(ctx context.Context, ip string, port int) (*peer.Link, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not an IP address", ErrInvalidAddress, ip)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidAddress, port)
	}
	ip = addr.Unmap().String()

	if d.isSelf(ip, port) {
		return nil, fmt.Errorf("%w: %s", ErrSelfConnection, peer.Key(ip, port))
	}
	if d.table.Contains(ip, port) {
		return nil, fmt.Errorf("%w: %s", peer.ErrDuplicateConnection, peer.Key(ip, port))
	}

	nd := net.Dialer{Timeout: d.timeout}
	conn, err := nd.DialContext(ctx, "tcp", peer.Key(ip, port))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	link := peer.NewLink(conn, ip, port, false)
	if err := d.table.Insert(link); err != nil {
		link.Close() //nolint:errcheck
		return nil, err
	}
	if err := d.recv.Start(link); err != nil {
		link.Close() //nolint:errcheck
		d.table.Remove(link)
		return nil, err
	}
	d.log.Debug("connected", "peer", link.Addr(), "id", link.ID)
	return link, nil
}
