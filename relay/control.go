package relay

import (
	"bufio"
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Control answers one-line management commands on a unix socket.
//
//	stats     -> OK|connections=N,users=a;b
//	shutdown  -> OK|Shutting down, then stop is called
type Control struct {
	path   string
	srv    *Server
	stop   func()
	logger zerolog.Logger
}

func NewControl(path string, srv *Server, stop func(), logger zerolog.Logger) *Control {
	return &Control{
		path:   path,
		srv:    srv,
		stop:   stop,
		logger: logger.With().Str("control", path).Logger(),
	}
}

// Run listens until ctx is cancelled and removes the socket file on exit.
func (c *Control) Run(ctx context.Context) error {
	// Remove a stale socket file
	os.Remove(c.path)

	ln, err := net.Listen("unix", c.path)
	if err != nil {
		return errors.Wrapf(err, "listen control socket %s", c.path)
	}
	defer os.Remove(c.path)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	c.logger.Info().Msg("Control socket listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.logger.Warn().Err(err).Msg("Control accept failed")
			continue
		}
		go c.handle(conn)
	}
}

func (c *Control) handle(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	switch cmd := strings.TrimSpace(line); cmd {
	case "stats":
		conn.Write([]byte("OK|" + formatStats(c.srv.Stats()) + "\n"))
	case "shutdown":
		conn.Write([]byte("OK|Shutting down\n"))
		c.logger.Info().Msg("Shutdown requested")
		c.stop()
	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}

func formatStats(s Stats) string {
	return "connections=" + strconv.Itoa(s.Connections) + ",users=" + strings.Join(s.Users, ";")
}
