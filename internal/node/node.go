// Package node wires a peer table, a listener, a dialer and the receive
// loops into one chat node.
//
// Design:
//   - One goroutine runs the accept loop.
//   - One goroutine per link runs its receive loop; it closes and removes
//     its own link when the stream ends.
//   - Every other operation (connect, list, send, terminate) runs on the
//     caller's goroutine and only touches the table under its lock.
//   - Stop closes the listener and every link, then waits for all of the
//     above goroutines to return.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Operative-001/murmur/internal/config"
	"github.com/Operative-001/murmur/internal/peer"
	"github.com/Operative-001/murmur/internal/seen"
	"github.com/Operative-001/murmur/internal/transport"
)

var (
	ErrMessageTooLong = errors.New("node: message too long")
	ErrEmptyMessage   = errors.New("node: empty message")
)

// Config configures a Node. Port 0 picks a free port. Events defaults to
// transport.NopEvents. AdvertisedIP overrides the detected local address.
type Config struct {
	Port         int
	Settings     config.Config
	Events       transport.Events
	Logger       *slog.Logger
	AdvertisedIP string
}

// Node is one chat participant: server and client at once.
type Node struct {
	cfg    Config
	log    *slog.Logger
	table  *peer.Table
	relay  *seen.Cache
	recv   *transport.Receiver
	dialer *transport.Dialer
	myIP   string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	ln       *transport.Listener
	serveErr chan error

	stopOnce sync.Once
}

// New creates a Node. Nothing is bound until Start.
func New(cfg Config) (*Node, error) {
	cfg.Settings.FillDefaults()
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: %d", config.ErrInvalidPort, cfg.Port)
	}
	if cfg.Events == nil {
		cfg.Events = transport.NopEvents{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AdvertisedIP == "" {
		cfg.AdvertisedIP = localIP()
	}

	n := &Node{
		cfg:   cfg,
		log:   cfg.Logger,
		table: peer.NewTable(),
		myIP:  cfg.AdvertisedIP,
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	if cfg.Settings.Relay {
		n.relay = seen.New(cfg.Settings.RelayWindow)
	}
	n.recv = transport.NewReceiver(n.table, cfg.Events, transport.ReceiverConfig{
		ReadBuffer: cfg.Settings.ReadBuffer,
		Relay:      n.relay,
		Logger:     n.log,
	})
	n.dialer = transport.NewDialer(n.table, n.recv, n.isSelf, cfg.Settings.DialTimeout, n.log)
	return n, nil
}

// Start binds the listening port and begins accepting peers. A returned
// error wraps transport.ErrBindFailed; the node stays usable for outbound
// connections.
func (n *Node) Start() error {
	ln, err := transport.Listen(n.ctx, n.cfg.Port, n.table, n.recv, n.cfg.Events, n.log)
	if err != nil {
		n.log.Error("listener disabled", "port", n.cfg.Port, "error", err)
		return err
	}

	n.mu.Lock()
	n.ln = ln
	n.serveErr = make(chan error, 1)
	n.mu.Unlock()

	go func() {
		n.serveErr <- ln.Serve()
	}()
	n.log.Info("listening", "port", ln.Port())
	return nil
}

// Stop closes the listener and every link and waits for every goroutine
// the node started. It is safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.cancel()

		n.mu.Lock()
		ln, serveErr := n.ln, n.serveErr
		n.mu.Unlock()
		if ln != nil {
			ln.Close() //nolint:errcheck
			if err := <-serveErr; err != nil {
				n.log.Warn("accept loop", "error", err)
			}
		}

		n.recv.Shutdown()
		if n.relay != nil {
			n.relay.Close()
		}
		n.log.Debug("node stopped")
	})
}

// Listening reports whether the inbound listener is up.
func (n *Node) Listening() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ln != nil
}

// MyIP returns the address peers should dial.
func (n *Node) MyIP() string { return n.myIP }

// MyPort returns the bound port, or the configured one when not listening.
func (n *Node) MyPort() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ln != nil {
		return n.ln.Port()
	}
	return n.cfg.Port
}

func (n *Node) isSelf(ip string, port int) bool {
	return port == n.MyPort() && isLocal(ip, n.myIP)
}

// Connect dials a peer.
func (n *Node) Connect(ip string, port int) (*peer.Link, error) {
	return n.dialer.Connect(n.ctx, ip, port)
}

// List returns the current links, 1-based.
func (n *Node) List() []peer.Entry {
	return n.table.List()
}

// Terminate closes and removes the link with the given id.
func (n *Node) Terminate(id int) (*peer.Link, error) {
	return n.table.Terminate(id)
}

// Send writes text to the link with the given id.
func (n *Node) Send(id int, text string) (*peer.Link, error) {
	msg, err := n.outgoing(text)
	if err != nil {
		return nil, err
	}
	return n.table.Send(id, msg)
}

// Broadcast writes text to every link. Links that fail are dropped and
// returned.
func (n *Node) Broadcast(text string) (int, []*peer.Link, error) {
	msg, err := n.outgoing(text)
	if err != nil {
		return 0, nil, err
	}
	sent, failed := n.table.Broadcast(msg, nil)
	return sent, failed, nil
}

func (n *Node) outgoing(text string) ([]byte, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len(text) > n.cfg.Settings.MaxMessage {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(text), n.cfg.Settings.MaxMessage)
	}
	msg := []byte(text)
	if n.relay != nil {
		// Our own text coming back around the mesh must not be relayed again.
		n.relay.AddMessage(msg)
	}
	return msg, nil
}
