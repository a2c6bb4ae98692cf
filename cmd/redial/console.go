package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"redial/pkg/core"
	"redial/pkg/reconnect"
	"redial/pkg/transport"
)

// sessionFactory builds a fresh session over a fresh link.
type sessionFactory func() (*reconnect.Manager, transport.Link, error)

// console dispatches the user commands of a run to the current session and its
// link. A connect after leave, or after the session gave up, starts a new one.
type console struct {
	build  sessionFactory
	out    io.Writer
	poller *reconnect.Poller

	// onDetach is called with the ID of every session the console lets go of.
	onDetach func(id string)

	mu       sync.Mutex
	session  *reconnect.Manager
	link     transport.Link
	interval time.Duration
	attempts int
	override struct{ interval, attempts bool }
	printers sync.WaitGroup
}

func newConsole(build sessionFactory, out io.Writer, pollPeriod time.Duration) (*console, error) {
	c := &console{build: build, out: out}
	if err := c.attach(); err != nil {
		return nil, err
	}
	c.poller = reconnect.NewPoller(c, pollPeriod)
	return c, nil
}

// Start begins polling the current session.
func (c *console) Start(ctx context.Context) {
	c.poller.Start(ctx)
}

// Snapshot returns the current session's snapshot.
func (c *console) Snapshot() core.Snapshot {
	session, _ := c.current()
	return session.Snapshot()
}

func (c *console) current() (*reconnect.Manager, transport.Link) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.link
}

// attach replaces the current session with a new one, tearing the old one down.
func (c *console) attach() error {
	session, link, err := c.build()
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.override.interval {
		session.SetReconnectInterval(c.interval)
	}
	if c.override.attempts {
		session.SetMaxReconnectAttempts(c.attempts)
	}
	oldSession, oldLink := c.session, c.link
	c.session, c.link = session, link
	c.mu.Unlock()

	c.printers.Add(1)
	go func() {
		defer c.printers.Done()
		printStates(session.Watch(context.Background()), c.out)
	}()

	if oldSession != nil {
		c.detach(oldSession, oldLink)
	}
	return nil
}

func (c *console) detach(session *reconnect.Manager, link transport.Link) {
	link.Leave()
	session.Destroy()
	if c.onDetach != nil {
		c.onDetach(session.ID())
	}
}

// Close stops polling and tears down the current session. It waits for the
// state printers to finish.
func (c *console) Close() {
	c.poller.Stop()
	session, link := c.current()
	c.detach(session, link)
	c.printers.Wait()
}

// Run reads one command per line until quit, EOF or ctx is done.
func (c *console) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("read commands: %w", err)
			}
			return nil
		case line := <-lines:
			quit, err := c.Execute(ctx, line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// Execute runs a single command line. quit is true for the quit command.
func (c *console) Execute(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	session, link := c.current()

	switch cmd, args := strings.ToLower(fields[0]), fields[1:]; cmd {
	case "connect":
		if err := c.connect(ctx, session); err != nil {
			return false, err
		}

	case "disconnect":
		if err := link.Disconnect(); err != nil {
			return false, err
		}

	case "leave":
		link.Leave()
		session.Destroy()
		fmt.Fprintln(c.out, "left session")

	case "status":
		data, err := sonic.Marshal(c.poller.Latest())
		if err != nil {
			return false, fmt.Errorf("encode status: %w", err)
		}
		fmt.Fprintln(c.out, string(data))

	case "interval":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: interval <duration>")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil || d <= 0 {
			return false, fmt.Errorf("invalid interval %q", args[0])
		}
		c.mu.Lock()
		c.interval, c.override.interval = d, true
		c.mu.Unlock()
		session.SetReconnectInterval(d)
		fmt.Fprintf(c.out, "reconnect interval set to %s\n", d)

	case "attempts":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: attempts <n>")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return false, fmt.Errorf("invalid attempt count %q", args[0])
		}
		c.mu.Lock()
		c.attempts, c.override.attempts = n, true
		c.mu.Unlock()
		session.SetMaxReconnectAttempts(n)
		fmt.Fprintf(c.out, "max reconnect attempts set to %d\n", n)

	case "reset":
		session.ResetReconnectCount()
		fmt.Fprintln(c.out, "reconnect count reset")

	case "help":
		fmt.Fprintln(c.out, "commands: connect, disconnect, leave, status, interval <duration>, attempts <n>, reset, help, quit")

	case "quit", "exit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %q", cmd)
	}
	return false, nil
}

// connect starts session, or a new session when it has been left or gave up.
func (c *console) connect(ctx context.Context, session *reconnect.Manager) error {
	if session.Exhausted() {
		session.Destroy()
	}

	err := session.Init(ctx)
	if errors.Is(err, core.ErrSessionClosed) {
		if err := c.attach(); err != nil {
			return fmt.Errorf("new session: %w", err)
		}
		session, _ = c.current()
		err = session.Init(ctx)
	}

	switch {
	case errors.Is(err, core.ErrAlreadyInitialized):
		fmt.Fprintln(c.out, "already connected or connecting")
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintln(c.out, "connecting...")
	return nil
}

// syncWriter serializes writes from the console and the state printers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
