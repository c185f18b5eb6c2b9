// Package chat implements the chat transport's session state machine
// (§4.E), message router (§4.F), and accept loop (§4.G).
package chat

import (
	"bytes"
	"fmt"
)

// Code is a wire message code (§6 "Chat wire format", CODE enumeration).
type Code string

const (
	CodePubkey      Code = "PUBKEY"
	CodeAESKey      Code = "AESKEY"
	CodeAESConf     Code = "AESCONF"
	CodeUsers       Code = "USERS"
	CodeUsersConf   Code = "USERSCONF"
	CodeLogin       Code = "LOGIN"
	CodeLoginConf   Code = "LOGINCONF"
	CodeRegstr      Code = "REGSTR"
	CodeRegstrConf  Code = "REGSTRCONF"
	CodeGetID       Code = "GETID"
	CodeGetIDConf   Code = "GETIDCONF"
	CodeSndMsg      Code = "SNDMSG"
	CodeSndMsgConf  Code = "SNDMSGCONF"
	CodeRcvdMsg     Code = "RCVDMSG"
	CodeRcvdMsgConf Code = "RCVDMSGCONF"
	CodeBuffer      Code = "BUFFER"
	CodeBufferConf  Code = "BUFFERCONF"
	CodeDatabase    Code = "DATABASE"
	CodeDatabaseCnf Code = "DATABASECONF"
	CodeDelUser     Code = "DELUSER"
	CodeDelUserConf Code = "DELUSERCONF"
	CodeLoggedOut   Code = "LOGGEDOUT"
)

// EncodeInner builds the "#CODE#BODY" (or "#CODE" when body is empty) frame
// interior, per §6's INNER grammar. Encryption happens one layer up.
func EncodeInner(code Code, body string) []byte {
	if body == "" {
		return []byte("#" + string(code))
	}
	return []byte("#" + string(code) + "#" + body)
}

// DecodeInner splits a decrypted frame interior into its code and raw body.
// The body is returned unparsed — handlers apply their own field rules,
// since some bodies (message text) may themselves contain "#".
func DecodeInner(data []byte) (Code, []byte, error) {
	if len(data) == 0 || data[0] != '#' {
		return "", nil, fmt.Errorf("chat: malformed frame interior %q", data)
	}
	rest := data[1:]
	idx := bytes.IndexByte(rest, '#')
	if idx < 0 {
		return Code(rest), nil, nil
	}
	return Code(rest[:idx]), rest[idx+1:], nil
}
