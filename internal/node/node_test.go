package node

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Operative-001/murmur/internal/config"
	"github.com/Operative-001/murmur/internal/peer"
	"github.com/Operative-001/murmur/internal/transport"
)

type countingEvents struct {
	mu          sync.Mutex
	messages    []string
	disconnects int
}

func (c *countingEvents) OnConnect(*peer.Link) {}

func (c *countingEvents) OnMessage(_ *peer.Link, text string) {
	c.mu.Lock()
	c.messages = append(c.messages, text)
	c.mu.Unlock()
}

func (c *countingEvents) OnDisconnect(*peer.Link) {
	c.mu.Lock()
	c.disconnects++
	c.mu.Unlock()
}

func (c *countingEvents) snapshot() ([]string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...), c.disconnects
}

func newTestNode(t *testing.T, port int) (*Node, *countingEvents) {
	t.Helper()
	ev := &countingEvents{}
	n, err := New(Config{
		Port:         port,
		Events:       ev,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		AdvertisedIP: "127.0.0.1",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(n.Stop)
	return n, ev
}

func startedNode(t *testing.T) (*Node, *countingEvents) {
	t.Helper()
	n, ev := newTestNode(t, 0)
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	return n, ev
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestTwoNodesExchangeHello(t *testing.T) {
	a, evA := startedNode(t)
	b, _ := startedNode(t)

	if _, err := b.Connect("127.0.0.1", a.MyPort()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "A to list B", func() bool { return len(a.List()) == 1 })
	if got := b.List(); len(got) != 1 || got[0].Port != a.MyPort() || got[0].Index != 1 {
		t.Fatalf("B lists %+v", got)
	}

	if _, err := b.Send(1, "hello"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "hello", func() bool {
		msgs, _ := evA.snapshot()
		return len(msgs) == 1
	})
	if msgs, _ := evA.snapshot(); msgs[0] != "hello" {
		t.Fatalf("A got %q", msgs)
	}
}

func TestSelfConnectionRejected(t *testing.T) {
	a, _ := startedNode(t)
	for _, ip := range []string{"127.0.0.1", a.MyIP(), "0.0.0.0"} {
		if _, err := a.Connect(ip, a.MyPort()); !errors.Is(err, transport.ErrSelfConnection) {
			t.Fatalf("Connect(%s): expected ErrSelfConnection, got %v", ip, err)
		}
	}
	if len(a.List()) != 0 {
		t.Fatal("self connection created an entry")
	}
}

func TestSendValidation(t *testing.T) {
	a, _ := startedNode(t)
	b, _ := startedNode(t)
	if _, err := a.Connect("127.0.0.1", b.MyPort()); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Send(5, "hi"); !errors.Is(err, peer.ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
	long := strings.Repeat("x", config.DefaultMaxMessage+1)
	if _, err := a.Send(1, long); !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("expected ErrMessageTooLong, got %v", err)
	}
	if _, err := a.Send(1, ""); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if len(a.List()) != 1 {
		t.Fatal("failed sends changed the table")
	}
}

func TestPeerLeavingIsNoticedOnce(t *testing.T) {
	a, evA := startedNode(t)
	b, _ := startedNode(t)
	if _, err := b.Connect("127.0.0.1", a.MyPort()); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "A to list B", func() bool { return len(a.List()) == 1 })

	if _, err := b.Terminate(1); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "A to drop B", func() bool { return len(a.List()) == 0 })
	time.Sleep(50 * time.Millisecond)
	if _, d := evA.snapshot(); d != 1 {
		t.Fatalf("disconnect notices: %d", d)
	}
	if _, err := b.Terminate(1); !errors.Is(err, peer.ErrInvalidIndex) {
		t.Fatalf("second terminate: %v", err)
	}
}

func TestStopWithThreeConnections(t *testing.T) {
	a, evA := startedNode(t)
	for i := 0; i < 3; i++ {
		p, _ := startedNode(t)
		if _, err := a.Connect("127.0.0.1", p.MyPort()); err != nil {
			t.Fatal(err)
		}
	}
	if len(a.List()) != 3 {
		t.Fatalf("have %d links", len(a.List()))
	}

	a.Stop()
	if len(a.List()) != 0 {
		t.Fatalf("links left after stop: %+v", a.List())
	}
	if msgs, d := evA.snapshot(); len(msgs) != 0 || d != 0 {
		t.Fatalf("output after stop: msgs=%v disconnects=%d", msgs, d)
	}
	a.Stop()
}

func TestBindFailureKeepsClientWorking(t *testing.T) {
	a, _ := startedNode(t)
	b, _ := startedNode(t)

	c, _ := newTestNode(t, a.MyPort())
	if err := c.Start(); !errors.Is(err, transport.ErrBindFailed) {
		t.Fatalf("expected ErrBindFailed, got %v", err)
	}
	if c.Listening() {
		t.Fatal("listener should be down")
	}
	if _, err := c.Connect("127.0.0.1", b.MyPort()); err != nil {
		t.Fatalf("client-only node cannot dial: %v", err)
	}
}

func TestBroadcast(t *testing.T) {
	a, _ := startedNode(t)
	b, evB := startedNode(t)
	c, evC := startedNode(t)
	for _, p := range []*Node{b, c} {
		if _, err := a.Connect("127.0.0.1", p.MyPort()); err != nil {
			t.Fatal(err)
		}
	}

	sent, failed, err := a.Broadcast("to everyone")
	if err != nil || sent != 2 || len(failed) != 0 {
		t.Fatalf("sent=%d failed=%v err=%v", sent, failed, err)
	}
	for _, ev := range []*countingEvents{evB, evC} {
		waitFor(t, "broadcast", func() bool {
			msgs, _ := ev.snapshot()
			return len(msgs) == 1 && msgs[0] == "to everyone"
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Port: 70000}); !errors.Is(err, config.ErrInvalidPort) {
		t.Fatalf("expected ErrInvalidPort, got %v", err)
	}
	bad := config.Default()
	bad.ReadBuffer = -1
	if _, err := New(Config{Settings: bad}); err == nil {
		t.Fatal("expected settings error")
	}
}

func TestPartialSettingsGetDefaults(t *testing.T) {
	n, err := New(Config{
		Settings:     config.Config{Relay: true},
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		AdvertisedIP: "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("relay-only settings rejected: %v", err)
	}
	defer n.Stop()

	if n.relay == nil {
		t.Fatal("relay not enabled")
	}
	if got := n.cfg.Settings.MaxMessage; got != config.DefaultMaxMessage {
		t.Fatalf("MaxMessage=%d, want %d", got, config.DefaultMaxMessage)
	}
	if got := n.cfg.Settings.ReadBuffer; got != config.DefaultReadBuffer {
		t.Fatalf("ReadBuffer=%d, want %d", got, config.DefaultReadBuffer)
	}
}
