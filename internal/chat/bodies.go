package chat

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// isValidName implements §4.E "Name validity": non-empty, alphabetic only.
func isValidName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// splitField splits body into two parts at the first occurrence of sep.
// Used for "#"-joined bodies like LOGIN/REGSTR/RCVDMSGCONF (§6 grammar
// leaves non-listed bodies to the same "#"-separated convention as INNER).
func splitField(body, sep string) (string, string, bool) {
	idx := strings.Index(body, sep)
	if idx < 0 {
		return "", "", false
	}
	return body[:idx], body[idx+len(sep):], true
}

// parseSndMsgBody splits "DDDD TEXT" (§6: SNDMSG := DDDD<space>TEXT).
func parseSndMsgBody(body string) (dst int, text string, err error) {
	if len(body) < 5 || body[4] != ' ' {
		return 0, "", fmt.Errorf("chat: malformed SNDMSG body %q", body)
	}
	dst, err = strconv.Atoi(body[:4])
	if err != nil {
		return 0, "", fmt.Errorf("chat: malformed SNDMSG target %q: %w", body[:4], err)
	}
	return dst, body[5:], nil
}

// parseID4 parses a zero-padded 4-digit decimal id.
func parseID4(s string) (int, error) {
	if len(s) != 4 {
		return 0, fmt.Errorf("chat: want 4-digit id, got %q", s)
	}
	return strconv.Atoi(s)
}

// encodeLenPrefixedEntry renders one "LLLL#FIELD#VALUE\n" dump line, where
// LLLL is len(VALUE)+1 zero-padded to 4 digits (§6 BUFFERCONF/DATABASECONF).
func encodeLenPrefixedEntry(field, value string) string {
	return fmt.Sprintf("%04d#%s#%s\n", len(value)+1, field, value)
}

// emptyBufferEntry renders the synthetic "Buffer is empty" sentinel (§6).
// Unlike encodeLenPrefixedEntry, it carries no trailing newline — this is
// the one dump entry that is also the entire body, not a line in a list.
func emptyBufferEntry() string {
	const value = "Buffer is empty"
	return fmt.Sprintf("%04d#0000#%s", len(value)+1, value)
}

// encodeUserEntry renders one USERS listing row as "{name} #{id}\n".
func encodeUserEntry(e UserEntry) string {
	return fmt.Sprintf("%s #%d\n", e.Name, e.ID)
}
