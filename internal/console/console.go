// Package console is the line-oriented user interface of a node. It turns
// typed commands into node calls and prints what the receive loops report.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/Operative-001/murmur/internal/config"
	"github.com/Operative-001/murmur/internal/node"
	"github.com/Operative-001/murmur/internal/peer"
	"github.com/Operative-001/murmur/internal/transport"
	"github.com/google/uuid"
)

const Prompt = "> "

// Controller is the part of a node the console drives.
type Controller interface {
	MyIP() string
	MyPort() int
	Connect(ip string, port int) (*peer.Link, error)
	List() []peer.Entry
	Terminate(id int) (*peer.Link, error)
	Send(id int, text string) (*peer.Link, error)
	Broadcast(text string) (int, []*peer.Link, error)
	Stop()
}

// Console serialises all output to one writer. It also implements
// transport.Events so receive loops can print through it.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

var _ transport.Events = (*Console)(nil)

// New returns a Console writing to out.
func New(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) printf(format string, a ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, a...)
}

// OnConnect implements transport.Events.
func (c *Console) OnConnect(l *peer.Link) {
	c.printf("\nConnection established with %s:%d\n%s", l.IP, l.Port, Prompt)
}

// OnMessage implements transport.Events.
func (c *Console) OnMessage(l *peer.Link, text string) {
	c.printf("\nMessage received from %s\nSender's Port: %d\nMessage: \"%s\"\n%s", l.IP, l.Port, text, Prompt)
}

// OnDisconnect implements transport.Events.
func (c *Console) OnDisconnect(l *peer.Link) {
	c.printf("\nPeer %s:%d disconnected.\n%s", l.IP, l.Port, Prompt)
}

// Run reads commands from in until "exit" or end of input. Either way the
// node is stopped before Run returns.
func (c *Console) Run(ctl Controller, in io.Reader) error {
	defer ctl.Stop()

	c.printf("%s", Prompt)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if c.Exec(ctl, scanner.Text()) {
			return nil
		}
		c.printf("%s", Prompt)
	}
	return scanner.Err()
}

// Exec runs one command line and reports whether it was "exit".
func (c *Console) Exec(ctl Controller, line string) (exit bool) {
	args := splitArgs(line, 3)
	if len(args) == 0 {
		return false
	}

	switch strings.ToLower(args[0]) {
	case "help":
		c.printf("%s", helpText)

	case "myip":
		c.printf("My IP address: %s\n", ctl.MyIP())

	case "myport":
		c.printf("My listening port: %d\n", ctl.MyPort())

	case "connect":
		args = strings.Fields(line)
		if len(args) != 3 {
			c.printf("usage: connect <destination> <port>\n")
			return false
		}
		port, err := config.ParsePort(args[2])
		if err != nil {
			c.printf("Error: Invalid port %q.\n", args[2])
			return false
		}
		l, err := ctl.Connect(args[1], port)
		if err != nil {
			c.printf("Error: %s\n", describe(err))
			return false
		}
		c.printf("Connected to %s:%d\n", l.IP, l.Port)

	case "list":
		c.list(ctl.List())

	case "terminate":
		if len(args) != 2 {
			c.printf("usage: terminate <connection id>\n")
			return false
		}
		id, ok := parseID(args[1])
		if !ok {
			c.printf("Error: %s\n", describe(peer.ErrInvalidIndex))
			return false
		}
		if _, err := ctl.Terminate(id); err != nil {
			c.printf("Error: %s\n", describe(err))
			return false
		}
		c.printf("Connection %d terminated.\n", id)

	case "send":
		if len(args) != 3 {
			c.printf("usage: send <connection id> <message>\n")
			return false
		}
		id, ok := parseID(args[1])
		if !ok {
			c.printf("Error: %s\n", describe(peer.ErrInvalidIndex))
			return false
		}
		if _, err := ctl.Send(id, args[2]); err != nil {
			c.printf("Error: %s\n", describe(err))
			return false
		}
		c.printf("Message sent to connection %d.\n", id)

	case "broadcast":
		args = splitArgs(line, 2)
		if len(args) != 2 {
			c.printf("usage: broadcast <message>\n")
			return false
		}
		sent, failed, err := ctl.Broadcast(args[1])
		if err != nil {
			c.printf("Error: %s\n", describe(err))
			return false
		}
		for _, l := range failed {
			c.printf("Dropped %s:%d: send failed.\n", l.IP, l.Port)
		}
		c.printf("Message sent to %d connection(s).\n", sent)

	case "exit":
		c.printf("Closing all connections...\n")
		ctl.Stop()
		c.printf("Exiting the chat application.\n")
		return true

	default:
		c.printf("Unknown command %q. Type 'help' for a list of commands.\n", args[0])
	}
	return false
}

func (c *Console) list(entries []peer.Entry) {
	if len(entries) == 0 {
		c.printf("No active connections.\n")
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "id: IP address%-10s Port No.  Link\n", "")
	for _, e := range entries {
		dir := "out"
		if e.Inbound {
			dir = "in"
		}
		fmt.Fprintf(&b, "%d: %-20s %-8d  %s (%s)\n", e.Index, e.IP, e.Port, shortID(e.ID), dir)
	}
	c.printf("%s", b.String())
}

const helpText = `Available commands:
  help                              show this message
  myip                              show the IP address of this node
  myport                            show the port this node listens on
  connect <destination> <port>      connect to a peer
  list                              list active connections
  terminate <connection id>         close a connection
  send <connection id> <message>    send a message to one connection
  broadcast <message>               send a message to every connection
  exit                              close all connections and quit

With relay on, received messages are forwarded to every other peer. Text
identical to a message seen within the relay window is shown but not
forwarded again.
`

// describe turns a node error into a user message.
func describe(err error) string {
	switch {
	case errors.Is(err, transport.ErrInvalidAddress):
		return "Invalid IP address."
	case errors.Is(err, transport.ErrSelfConnection):
		return "Cannot connect to yourself."
	case errors.Is(err, peer.ErrDuplicateConnection):
		return "Duplicate connection."
	case errors.Is(err, peer.ErrInvalidIndex):
		return "Invalid connection ID."
	case errors.Is(err, node.ErrMessageTooLong):
		return "Message too long."
	case errors.Is(err, node.ErrEmptyMessage):
		return "Message is empty."
	case errors.Is(err, peer.ErrSocketIO):
		return "Send failed; connection dropped."
	default:
		return err.Error()
	}
}

// shortID is the first group of a link's uuid, enough to match it against
// the "id" attribute in the log.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func parseID(s string) (int, bool) {
	id, err := strconv.Atoi(s)
	return id, err == nil
}

// splitArgs splits line into at most n whitespace-separated fields; the
// last field keeps the rest of the line, inner spacing included.
func splitArgs(line string, n int) []string {
	var out []string
	rest := strings.TrimSpace(line)
	for rest != "" {
		if len(out) == n-1 {
			return append(out, rest)
		}
		i := strings.IndexFunc(rest, unicode.IsSpace)
		if i < 0 {
			return append(out, rest)
		}
		out = append(out, rest[:i])
		rest = strings.TrimLeftFunc(rest[i:], unicode.IsSpace)
	}
	return out
}
