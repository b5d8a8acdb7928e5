// Package transport moves raw text between this node and its peers over
// plain TCP. The Listener and Dialer produce links, register them in a
// peer.Table and hand each one to the Receiver, which runs exactly one
// receive loop per link.
package transport

import (
	"errors"

	"github.com/Operative-001/murmur/internal/peer"
)

var (
	ErrInvalidAddress = errors.New("transport: invalid address")
	ErrSelfConnection = errors.New("transport: cannot connect to self")
	ErrConnectFailed  = errors.New("transport: connect failed")
	ErrBindFailed     = errors.New("transport: bind failed")
	ErrShuttingDown   = errors.New("transport: shutting down")
)

// Events receives link lifecycle notifications. Implementations are called
// from receive and accept goroutines concurrently.
type Events interface {
	// OnConnect fires once an inbound link is registered.
	OnConnect(l *peer.Link)
	// OnMessage fires for every valid UTF-8 read.
	OnMessage(l *peer.Link, text string)
	// OnDisconnect fires once, from the receive loop that removed l,
	// unless the node is shutting down.
	OnDisconnect(l *peer.Link)
}

// SelfFunc reports whether ip:port is this node's own endpoint.
type SelfFunc func(ip string, port int) bool

// NopEvents discards every notification.
type NopEvents struct{}

func (NopEvents) OnConnect(*peer.Link)         {}
func (NopEvents) OnMessage(*peer.Link, string) {}
func (NopEvents) OnDisconnect(*peer.Link)      {}
