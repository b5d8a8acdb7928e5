package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/Operative-001/murmur/internal/peer"
)

// Listener accepts inbound peers on one TCP port.
type Listener struct {
	ln     net.Listener
	table  *peer.Table
	recv   *Receiver
	events Events
	log    *slog.Logger
}

// Listen binds 0.0.0.0:port with SO_REUSEADDR. Port 0 picks a free port.
// Failures wrap ErrBindFailed.
func Listen(ctx context.Context, port int, table *peer.Table, recv *Receiver, events Events, logger *slog.Logger) (*Listener, error) {
	if events == nil {
		events = NopEvents{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(ctx, "tcp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("%w: port %d: %v", ErrBindFailed, port, err)
	}
	return &Listener{
		ln:     ln,
		table:  table,
		recv:   recv,
		events: events,
		log:    logger,
	}, nil
}

// Port returns the bound port.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Close stops the accept loop.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts connections until the listener is closed, at which point
// it returns nil.
func (l *Listener) Serve() error {
	var backoff time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			l.log.Warn("accept error", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		l.admit(conn)
	}
}

func (l *Listener) admit(conn net.Conn) {
	link, err := peer.FromConn(conn, true)
	if err != nil {
		l.log.Warn("rejecting inbound connection", "error", err)
		conn.Close()
		return
	}
	if err := l.table.Insert(link); err != nil {
		l.log.Info("closing duplicate inbound connection", "peer", link.Addr())
		link.Close() //nolint:errcheck
		return
	}
	l.log.Debug("accepted connection", "peer", link.Addr(), "id", link.ID)
	l.events.OnConnect(link)
	if err := l.recv.Start(link); err != nil {
		link.Close() //nolint:errcheck
		l.table.Remove(link)
	}
}
