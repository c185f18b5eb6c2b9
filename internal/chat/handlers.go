package chat

import (
	"fmt"
	"strings"

	"github.com/proconq/proconq/internal/creds"
)

// handler processes one decoded frame body for a session. Registered in
// handlers below — an explicit tag → handler table per the design note
// against dispatch-by-string-method-name (§9).
type handlerFunc func(s *Session, body string) error

var handlers = map[Code]handlerFunc{
	CodeLogin:       handleLogin,
	CodeRegstr:      handleRegstr,
	CodeGetID:       handleGetID,
	CodeUsers:       handleUsers,
	CodeSndMsg:      handleSndMsg,
	CodeRcvdMsgConf: handleRcvdMsgConf,
	CodeBuffer:      handleBuffer,
	CodeDatabase:    handleDatabase,
	CodeDelUser:     handleDelUser,
}

const adminPrincipal = creds.AdminName

func handleLogin(s *Session, body string) error {
	name, pw, ok := splitField(body, "#")
	if !ok || !isValidName(name) {
		return s.sendFrame(CodeLoginConf, "0", true)
	}
	success, err := s.registry.Login(s, name, pw)
	if err != nil {
		return fmt.Errorf("login %q: %w", name, err)
	}
	if success {
		return s.sendFrame(CodeLoginConf, "1", true)
	}
	return s.sendFrame(CodeLoginConf, "0", true)
}

func handleRegstr(s *Session, body string) error {
	name, pw, ok := splitField(body, "#")
	if !ok || !isValidName(name) {
		return s.sendFrame(CodeRegstrConf, "0", true)
	}
	success, err := s.registry.Register(name, pw)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}
	if success {
		return s.sendFrame(CodeRegstrConf, "1", true)
	}
	return s.sendFrame(CodeRegstrConf, "0", true)
}

func handleGetID(s *Session, _ string) error {
	return s.sendFrame(CodeGetIDConf, fmt.Sprintf("%04d", s.ID()), true)
}

func handleUsers(s *Session, _ string) error {
	var b strings.Builder
	for _, entry := range s.registry.Snapshot() {
		b.WriteString(encodeUserEntry(entry))
	}
	return s.sendFrame(CodeUsersConf, b.String(), true)
}

// handleSndMsg implements §4.F routing. It never replies on success — the
// positive signal to the sender is the eventual RCVDMSG/RCVDMSGCONF flow.
func handleSndMsg(s *Session, body string) error {
	dst, text, err := parseSndMsgBody(body)
	if err != nil {
		return err
	}

	if dst == s.ID() {
		return s.sendFrame(CodeSndMsgConf, fmt.Sprintf("0#%04d", dst), true)
	}

	target := s.registry.Get(dst)
	if target == nil {
		return s.sendFrame(CodeSndMsgConf, fmt.Sprintf("0#%04d", dst), true)
	}

	s.appendBuffer(dst, text)
	return target.sendFrame(CodeRcvdMsg, fmt.Sprintf("%04d#%s", s.ID(), text), true)
}

func handleRcvdMsgConf(s *Session, body string) error {
	srcStr, text, ok := splitField(body, "#")
	if !ok {
		return fmt.Errorf("chat: malformed RCVDMSGCONF body %q", body)
	}
	src, err := parseID4(srcStr)
	if err != nil {
		return err
	}
	if srcSess := s.registry.Get(src); srcSess != nil {
		srcSess.removeBuffered(s.ID(), text)
	}
	return nil
}

func handleBuffer(s *Session, _ string) error {
	entries := s.dumpBuffer()
	var b strings.Builder
	if len(entries) == 0 {
		b.WriteString(emptyBufferEntry())
	} else {
		for _, e := range entries {
			b.WriteString(encodeLenPrefixedEntry(fmt.Sprintf("%04d", e.TargetID), e.Text))
		}
	}
	return s.sendFrame(CodeBufferConf, b.String(), true)
}

func handleDatabase(s *Session, _ string) error {
	if s.PrincipalName() != adminPrincipal {
		if err := s.registry.AuditDenied(s.PrincipalName(), "DATABASE", ""); err != nil {
			return err
		}
		return s.sendFrame(CodeDatabaseCnf, "FAILURE", true)
	}

	creds, err := s.registry.Credentials()
	if err != nil {
		return err
	}
	if err := s.registry.AuditDatabaseRead(s.PrincipalName(), true); err != nil {
		return err
	}

	if len(creds) == 0 {
		return s.sendFrame(CodeDatabaseCnf, "EMPTY", true)
	}
	var b strings.Builder
	for name, hash := range creds {
		b.WriteString(encodeLenPrefixedEntry(name, hash))
	}
	return s.sendFrame(CodeDatabaseCnf, b.String(), true)
}

func handleDelUser(s *Session, body string) error {
	name := strings.TrimSpace(body)

	if s.PrincipalName() != adminPrincipal {
		if err := s.registry.AuditDenied(s.PrincipalName(), "DELUSER", name); err != nil {
			return err
		}
		return s.sendFrame(CodeDelUserConf, "0#"+name, true)
	}
	if strings.EqualFold(name, "GUEST") {
		if err := s.registry.AuditDenied(s.PrincipalName(), "DELUSER", name); err != nil {
			return err
		}
		return s.sendFrame(CodeDelUserConf, "0#"+name, true)
	}

	deleted, err := s.registry.DeleteUser(s.PrincipalName(), name)
	if err != nil {
		return err
	}
	if deleted {
		return s.sendFrame(CodeDelUserConf, "1#"+name, true)
	}
	return s.sendFrame(CodeDelUserConf, "0#"+name, true)
}
