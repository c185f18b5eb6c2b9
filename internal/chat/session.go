package chat

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/proconq/proconq/internal/creds"
	"github.com/proconq/proconq/internal/cryptosuite"
	"github.com/proconq/proconq/internal/wire"
)

// Session is the server-side per-client record of §3/§4.E: assigned id,
// current principal, the symmetric key/IV established by the handshake,
// and the per-recipient delivery buffer.
type Session struct {
	conn     net.Conn
	log      *slog.Logger
	registry *Registry

	id int

	rsa *cryptosuite.RSACipher
	aes *cryptosuite.AESCipher

	writeMu sync.Mutex

	stateMu   sync.Mutex
	principal string

	// bufferMu guards buffer, since the owning session's goroutine appends
	// and dumps it while the acknowledging peer's goroutine trims it on
	// RCVDMSGCONF.
	bufferMu sync.Mutex
	buffer   map[int][]string

	// loggedOutPending is set by forceLogout (called under the registry
	// lock from another goroutine) and drained by the owning read loop,
	// which sends the LOGGEDOUT frame.
	loggedOutPending chan struct{}
}

func newSession(conn net.Conn, registry *Registry, log *slog.Logger) (*Session, error) {
	rsaCipher, err := cryptosuite.NewRSACipher()
	if err != nil {
		return nil, fmt.Errorf("generate session rsa keypair: %w", err)
	}
	return &Session{
		conn:             conn,
		log:              log,
		registry:         registry,
		principal:        creds.Reserved,
		buffer:           make(map[int][]string),
		rsa:              rsaCipher,
		loggedOutPending: make(chan struct{}, 1),
	}, nil
}

// ID returns the session's assigned 4-digit id. Zero before Accept.
func (s *Session) ID() int { return s.id }

// PrincipalName returns the session's current principal, default GUEST.
func (s *Session) PrincipalName() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.principal
}

func (s *Session) setPrincipal(name string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.principal = name
}

// forceLogout is called by Registry.DeleteUser, under the registry lock,
// from a goroutine other than this session's own read loop. It only
// mutates state and schedules the LOGGEDOUT frame; the actual write happens
// on the owning read loop the next time it checks loggedOutPending. Other
// sessions' goroutines may also write to conn (RCVDMSG forwarding); every
// write goes through sendFrame, which serializes them under writeMu.
func (s *Session) forceLogout() {
	s.setPrincipal(creds.Reserved)
	select {
	case s.loggedOutPending <- struct{}{}:
	default:
	}
}

// sendFrame encrypts body (unless plaintext is requested for the PUBKEY
// frame) and writes the length-prefixed frame to the connection.
func (s *Session) sendFrame(code Code, body string, encrypt bool) error {
	inner := EncodeInner(code, body)

	payload := inner
	if encrypt {
		ct, err := s.aes.Encrypt(inner)
		if err != nil {
			return fmt.Errorf("encrypt frame: %w", err)
		}
		payload = ct
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.log.Debug("sending frame", "conn", s.conn.RemoteAddr(), "code", code, "encrypted", encrypt)
	return wire.WriteFrame(s.conn, payload)
}

// drainLogout flushes a pending forced-logout notification by sending
// LOGGEDOUT. Called by the read loop between frames.
func (s *Session) drainLogout() error {
	select {
	case <-s.loggedOutPending:
		return s.sendFrame(CodeLoggedOut, "", true)
	default:
		return nil
	}
}

// runHandshake performs ACCEPTED → AWAIT_AESKEY → READY (§4.E).
func (s *Session) runHandshake() error {
	pubPEM, err := s.rsa.PublicKeyPEM()
	if err != nil {
		return fmt.Errorf("export public key: %w", err)
	}
	if err := s.sendFrame(CodePubkey, string(pubPEM), false); err != nil {
		return fmt.Errorf("send PUBKEY: %w", err)
	}

	payload, err := wire.ReadFrame(s.conn)
	if err != nil {
		return fmt.Errorf("read AESKEY frame: %w", err)
	}
	plaintext, err := s.rsa.Decrypt(payload)
	if err != nil {
		return fmt.Errorf("decrypt AESKEY frame: %w", err)
	}
	code, body, err := DecodeInner(plaintext)
	if err != nil {
		return err
	}
	if code != CodeAESKey {
		return fmt.Errorf("chat: expected AESKEY, got %s", code)
	}

	key, iv, err := parseAESKeyBody(string(body))
	if err != nil {
		return fmt.Errorf("parse AESKEY body: %w", err)
	}
	aesCipher, err := cryptosuite.NewAESCipherWithKey(key, iv)
	if err != nil {
		return fmt.Errorf("install session aes key: %w", err)
	}
	s.aes = aesCipher

	return s.sendFrame(CodeAESConf, "", true)
}

// parseAESKeyBody decodes the "key###iv" body (§6 "AESKEY"). Each half is
// base64 — a printable representation that survives the wire round trip,
// standing in for the Python original's repr()/ast.literal_eval() pair.
func parseAESKeyBody(body string) (key, iv []byte, err error) {
	parts := strings.SplitN(body, "###", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("chat: malformed AESKEY body")
	}
	key, err = base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, nil, fmt.Errorf("decode aes key: %w", err)
	}
	iv, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("decode aes iv: %w", err)
	}
	return key, iv, nil
}

// run drives the authenticated command loop until the connection closes or
// errors. Callers must complete runHandshake and register the session with
// the registry before calling run, so s.aes is never nil here and no other
// session can route a frame to this id before the handshake finishes.
func (s *Session) run() {
	for {
		if err := s.drainLogout(); err != nil {
			s.log.Warn("send LOGGEDOUT failed", "conn", s.conn.RemoteAddr(), "err", err)
			return
		}

		if err := s.conn.SetReadDeadline(readDeadline()); err != nil {
			s.log.Warn("set read deadline", "err", err)
			return
		}

		payload, err := wire.ReadFrame(s.conn)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			s.log.Debug("connection closed", "conn", s.conn.RemoteAddr(), "err", err)
			return
		}

		plaintext, err := s.aes.Decrypt(payload)
		if err != nil {
			s.log.Warn("decrypt frame failed, dropping connection", "conn", s.conn.RemoteAddr(), "err", err)
			return
		}

		code, body, err := DecodeInner(plaintext)
		if err != nil {
			s.log.Warn("malformed frame interior", "conn", s.conn.RemoteAddr(), "err", err)
			continue
		}

		handler, ok := handlers[code]
		if !ok {
			s.log.Warn("unknown code, dropping frame", "conn", s.conn.RemoteAddr(), "code", code)
			continue
		}
		if err := handler(s, string(body)); err != nil {
			s.log.Warn("handler error", "conn", s.conn.RemoteAddr(), "code", code, "err", err)
		}
	}
}

// BufferEntry is one pending, unacknowledged outgoing message (§4.F BUFFER).
type BufferEntry struct {
	TargetID int
	Text     string
}

// appendBuffer records text as delivered-but-unacknowledged to targetID.
// Called from this session's own read loop while handling SNDMSG.
func (s *Session) appendBuffer(targetID int, text string) {
	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()
	s.buffer[targetID] = append(s.buffer[targetID], text)
}

// removeBuffered drops the first occurrence of text queued for targetID,
// per RCVDMSGCONF reconciliation (§4.F). A missing entry is silently
// ignored. Called from the acknowledging session's goroutine, not s's own.
func (s *Session) removeBuffered(targetID int, text string) {
	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()
	pending := s.buffer[targetID]
	for i, msg := range pending {
		if msg == text {
			s.buffer[targetID] = append(pending[:i:i], pending[i+1:]...)
			return
		}
	}
}

// dumpBuffer returns every pending entry across all targets, in a stable
// order, for the BUFFER/BUFFERCONF exchange.
func (s *Session) dumpBuffer() []BufferEntry {
	s.bufferMu.Lock()
	defer s.bufferMu.Unlock()
	targets := make([]int, 0, len(s.buffer))
	for targetID := range s.buffer {
		targets = append(targets, targetID)
	}
	sort.Ints(targets)
	var out []BufferEntry
	for _, targetID := range targets {
		for _, msg := range s.buffer[targetID] {
			out = append(out, BufferEntry{TargetID: targetID, Text: msg})
		}
	}
	return out
}
