package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/proconq/proconq/internal/creds"
)

// readTimeout is the per-connection receive timeout (§4.G, §5): on expiry
// the worker loops again rather than treating it as an error.
const readTimeout = 100 * time.Millisecond

func readDeadline() time.Time { return time.Now().Add(readTimeout) }

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Server is the accept loop of §4.G: one worker per connection, sharing a
// single Registry, with a per-source-IP accept limiter to absorb a
// reconnect storm from a single client.
type Server struct {
	registry *Registry
	log      *slog.Logger

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewServer wires a Registry backed by store into a Server ready to Serve.
func NewServer(store *creds.Store, log *slog.Logger) *Server {
	return &Server{
		registry: NewRegistry(store),
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Registry exposes the underlying session/credential registry, e.g. so a
// test can inspect stored credentials.
func (srv *Server) Registry() *Registry { return srv.registry }

// Serve accepts connections on ln until it returns an error (including
// listener closure, which callers trigger to stop the loop).
func (srv *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("accept: %w", err)
		}

		if !srv.allow(conn.RemoteAddr()) {
			srv.log.Warn("rejecting connection, rate limited", "addr", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go srv.handle(conn)
	}
}

func (srv *Server) allow(addr net.Addr) bool {
	host := hostOf(addr)

	srv.limiterMu.Lock()
	lim, ok := srv.limiters[host]
	if !ok {
		// 5 accepts/sec sustained, bursts of 10 — generous enough for a
		// legitimate client retrying a dropped handshake, tight enough to
		// blunt a single source hammering the accept loop.
		lim = rate.NewLimiter(5, 10)
		srv.limiters[host] = lim
	}
	srv.limiterMu.Unlock()

	return lim.Allow()
}

func hostOf(addr net.Addr) string {
	s := addr.String()
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		return s[:idx]
	}
	return s
}

func (srv *Server) handle(conn net.Conn) {
	defer conn.Close()

	sess, err := newSession(conn, srv.registry, srv.log)
	if err != nil {
		srv.log.Error("create session", "addr", conn.RemoteAddr(), "err", err)
		return
	}

	// The handshake runs before the session is registered: until s.aes is
	// set, this session must be unreachable from USERS/SNDMSG routing, or a
	// peer could forward to it and hit a nil cipher.
	if err := sess.runHandshake(); err != nil {
		srv.log.Warn("handshake failed", "addr", conn.RemoteAddr(), "err", err)
		return
	}

	id, err := srv.registry.Accept(sess)
	if err != nil {
		// AllocationError (§7): id space exhausted, close immediately.
		srv.log.Error("accept session", "addr", conn.RemoteAddr(), "err", err)
		return
	}
	defer srv.registry.Remove(id)
	srv.log.Info("session accepted", "addr", conn.RemoteAddr(), "id", id)

	sess.run()
}
