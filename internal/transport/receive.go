package transport

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"unicode/utf8"

	"github.com/Operative-001/murmur/internal/peer"
	"github.com/Operative-001/murmur/internal/seen"
)

const DefaultReadBuffer = 1024

// ReceiverConfig configures a Receiver.
type ReceiverConfig struct {
	ReadBuffer int         // defaults to DefaultReadBuffer
	Relay      *seen.Cache // non-nil enables relaying received messages
	Logger     *slog.Logger
}

// Receiver owns the receive loops of every link in a table.
type Receiver struct {
	table  *peer.Table
	events Events
	bufSz  int
	relay  *seen.Cache
	log    *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewReceiver creates a Receiver for links registered in table.
func NewReceiver(table *peer.Table, events Events, cfg ReceiverConfig) *Receiver {
	if events == nil {
		events = NopEvents{}
	}
	if cfg.ReadBuffer <= 0 {
		cfg.ReadBuffer = DefaultReadBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Receiver{
		table:  table,
		events: events,
		bufSz:  cfg.ReadBuffer,
		relay:  cfg.Relay,
		log:    cfg.Logger,
	}
}

// Start launches the receive loop for l, which must already be in the
// table. After Shutdown it returns ErrShuttingDown and the caller owns l.
func (r *Receiver) Start(l *peer.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrShuttingDown
	}
	r.wg.Add(1)
	go r.run(l)
	return nil
}

// Shutdown refuses new loops, closes every link in the table and waits for
// every running loop to finish. Loops ending this way emit no disconnect
// notices.
func (r *Receiver) Shutdown() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.table.CloseAll()
	r.wg.Wait()
}

func (r *Receiver) stopping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Receiver) run(l *peer.Link) {
	defer r.wg.Done()
	r.log.Debug("receive loop started", "peer", l.Addr(), "id", l.ID)

	buf := make([]byte, r.bufSz)
	for {
		n, err := l.Conn().Read(buf)
		if n > 0 {
			r.deliver(l, buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				r.log.Debug("receive error", "peer", l.Addr(), "error", err)
			}
			break
		}
	}

	l.Close() //nolint:errcheck
	if r.table.Remove(l) && !r.stopping() {
		r.events.OnDisconnect(l)
	}
	r.log.Debug("receive loop finished", "peer", l.Addr(), "id", l.ID)
}

func (r *Receiver) deliver(l *peer.Link, msg []byte) {
	if !utf8.Valid(msg) {
		r.log.Debug("dropping non-UTF-8 message", "peer", l.Addr(), "bytes", len(msg))
		return
	}
	r.events.OnMessage(l, string(msg))

	if r.relay == nil || !r.relay.AddMessage(msg) {
		return
	}
	sent, failed := r.table.Broadcast(msg, l)
	r.log.Debug("relayed message", "from", l.Addr(), "sent", sent, "failed", len(failed))
}
