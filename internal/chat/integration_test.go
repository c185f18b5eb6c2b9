package chat

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/proconq/proconq/internal/creds"
	"github.com/proconq/proconq/internal/cryptosuite"
	"github.com/proconq/proconq/internal/wire"
)

// testClient is a minimal hand-rolled peer used only to drive the wire
// protocol end to end, mirroring what ccui/chat_client.py does on the
// other side of this handshake.
type testClient struct {
	conn net.Conn
	aes  *cryptosuite.AESCipher
}

func dialAndHandshake(t *testing.T, addr string) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	pubPayload, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read PUBKEY frame: %v", err)
	}
	code, body, err := DecodeInner(pubPayload)
	if err != nil || code != CodePubkey {
		t.Fatalf("expected PUBKEY, got %s err=%v", code, err)
	}
	pub, err := cryptosuite.ParsePublicKeyPEM(body)
	if err != nil {
		t.Fatalf("parse server public key: %v", err)
	}

	aesCipher, err := cryptosuite.NewAESCipher()
	if err != nil {
		t.Fatalf("new aes cipher: %v", err)
	}
	keyBody := base64.StdEncoding.EncodeToString(aesCipher.Key()) + "###" + base64.StdEncoding.EncodeToString(aesCipher.IV())
	inner := EncodeInner(CodeAESKey, keyBody)
	ciphertext, err := cryptosuite.EncryptWithPublicKey(pub, inner)
	if err != nil {
		t.Fatalf("encrypt AESKEY: %v", err)
	}
	if err := wire.WriteFrame(conn, ciphertext); err != nil {
		t.Fatalf("write AESKEY frame: %v", err)
	}

	confPayload, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("read AESCONF frame: %v", err)
	}
	plaintext, err := aesCipher.Decrypt(confPayload)
	if err != nil {
		t.Fatalf("decrypt AESCONF: %v", err)
	}
	code, _, err = DecodeInner(plaintext)
	if err != nil || code != CodeAESConf {
		t.Fatalf("expected AESCONF, got %s err=%v", code, err)
	}

	return &testClient{conn: conn, aes: aesCipher}
}

func (c *testClient) send(t *testing.T, code Code, body string) {
	t.Helper()
	inner := EncodeInner(code, body)
	ct, err := c.aes.Encrypt(inner)
	if err != nil {
		t.Fatalf("encrypt %s: %v", code, err)
	}
	if err := wire.WriteFrame(c.conn, ct); err != nil {
		t.Fatalf("write %s: %v", code, err)
	}
}

func (c *testClient) recv(t *testing.T) (Code, string) {
	t.Helper()
	payload, err := wire.ReadFrame(c.conn)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	plaintext, err := c.aes.Decrypt(payload)
	if err != nil {
		t.Fatalf("decrypt frame: %v", err)
	}
	code, body, err := DecodeInner(plaintext)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return code, string(body)
}

func newTestServer(t *testing.T) (addr string, registry *Registry) {
	t.Helper()
	store, err := creds.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.SeedAdmin("secret"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(store, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go srv.Serve(ln)

	return ln.Addr().String(), srv.Registry()
}

func TestRegisterAndLogin(t *testing.T) {
	addr, _ := newTestServer(t)
	c := dialAndHandshake(t, addr)
	defer c.conn.Close()

	c.send(t, CodeRegstr, "alice#pw1")
	if code, body := c.recv(t); code != CodeRegstrConf || body != "1" {
		t.Fatalf("first register: got %s %q, want REGSTRCONF 1", code, body)
	}

	c.send(t, CodeRegstr, "alice#pw2")
	if code, body := c.recv(t); code != CodeRegstrConf || body != "0" {
		t.Fatalf("duplicate register: got %s %q, want REGSTRCONF 0", code, body)
	}

	c.send(t, CodeLogin, "alice#pw1")
	if code, body := c.recv(t); code != CodeLoginConf || body != "1" {
		t.Fatalf("correct login: got %s %q, want LOGINCONF 1", code, body)
	}

	c.send(t, CodeLogin, "alice#wrong")
	if code, body := c.recv(t); code != CodeLoginConf || body != "0" {
		t.Fatalf("wrong password: got %s %q, want LOGINCONF 0", code, body)
	}

	c.send(t, CodeLogin, "GUEST#x")
	if code, body := c.recv(t); code != CodeLoginConf || body != "0" {
		t.Fatalf("GUEST login: got %s %q, want LOGINCONF 0", code, body)
	}
}

func TestInvalidNameRejectedWithoutDBRow(t *testing.T) {
	addr, registry := newTestServer(t)
	c := dialAndHandshake(t, addr)
	defer c.conn.Close()

	c.send(t, CodeRegstr, "al1ce#pw")
	if code, body := c.recv(t); code != CodeRegstrConf || body != "0" {
		t.Fatalf("got %s %q, want REGSTRCONF 0", code, body)
	}

	creds, err := registry.Credentials()
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if _, ok := creds["al1ce"]; ok {
		t.Fatalf("invalid name created a row")
	}
}

func TestRoutingAndBufferReconciliation(t *testing.T) {
	addr, _ := newTestServer(t)
	sender := dialAndHandshake(t, addr)
	defer sender.conn.Close()
	receiver := dialAndHandshake(t, addr)
	defer receiver.conn.Close()

	sender.send(t, CodeGetID, "")
	_, senderIDStr := sender.recv(t)
	receiver.send(t, CodeGetID, "")
	_, receiverIDStr := receiver.recv(t)

	sender.send(t, CodeSndMsg, fmt.Sprintf("%s hello", receiverIDStr))

	code, body := receiver.recv(t)
	if code != CodeRcvdMsg || body != senderIDStr+"#hello" {
		t.Fatalf("got %s %q, want RCVDMSG %q", code, body, senderIDStr+"#hello")
	}

	sender.send(t, CodeBuffer, "")
	code, body = sender.recv(t)
	if code != CodeBufferConf {
		t.Fatalf("got %s, want BUFFERCONF", code)
	}
	wantEntry := fmt.Sprintf("0006#%s#hello\n", receiverIDStr)
	if body != wantEntry {
		t.Fatalf("buffer before ack: got %q, want %q", body, wantEntry)
	}

	receiver.send(t, CodeRcvdMsgConf, senderIDStr+"#hello")
	time.Sleep(50 * time.Millisecond) // allow the sender's buffer removal to land

	sender.send(t, CodeBuffer, "")
	code, body = sender.recv(t)
	if code != CodeBufferConf {
		t.Fatalf("got %s, want BUFFERCONF", code)
	}
	if wantEmpty := "0016#0000#Buffer is empty"; body != wantEmpty {
		t.Fatalf("buffer after ack: got %q, want %q", body, wantEmpty)
	}
}

func TestSelfSendRejected(t *testing.T) {
	addr, _ := newTestServer(t)
	c := dialAndHandshake(t, addr)
	defer c.conn.Close()

	c.send(t, CodeGetID, "")
	_, idStr := c.recv(t)

	c.send(t, CodeSndMsg, idStr+" x")
	code, body := c.recv(t)
	if code != CodeSndMsgConf || body != "0#"+idStr {
		t.Fatalf("got %s %q, want SNDMSGCONF %q", code, body, "0#"+idStr)
	}
}

func TestAdminDeleteForcesLogout(t *testing.T) {
	addr, _ := newTestServer(t)

	alice := dialAndHandshake(t, addr)
	defer alice.conn.Close()
	alice.send(t, CodeRegstr, "alice#pw1")
	alice.recv(t)
	alice.send(t, CodeLogin, "alice#pw1")
	alice.recv(t)

	admin := dialAndHandshake(t, addr)
	defer admin.conn.Close()
	admin.send(t, CodeLogin, "ADMIN#secret")
	if code, body := admin.recv(t); code != CodeLoginConf || body != "1" {
		t.Fatalf("admin login: got %s %q", code, body)
	}

	admin.send(t, CodeDelUser, "alice")
	if code, body := admin.recv(t); code != CodeDelUserConf || body != "1#alice" {
		t.Fatalf("got %s %q, want DELUSERCONF 1#alice", code, body)
	}

	code, _ := alice.recv(t)
	if code != CodeLoggedOut {
		t.Fatalf("alice session: got %s, want LOGGEDOUT", code)
	}
}

func TestDatabaseAndDelUserRequireAdmin(t *testing.T) {
	addr, _ := newTestServer(t)
	c := dialAndHandshake(t, addr)
	defer c.conn.Close()

	c.send(t, CodeDatabase, "")
	if code, body := c.recv(t); code != CodeDatabaseCnf || body != "FAILURE" {
		t.Fatalf("got %s %q, want DATABASECONF FAILURE", code, body)
	}

	c.send(t, CodeDelUser, "GUEST")
	if code, body := c.recv(t); code != CodeDelUserConf || body != "0#GUEST" {
		t.Fatalf("got %s %q, want DELUSERCONF 0#GUEST", code, body)
	}
}
