package wire

import (
	"bytes"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte("a"),
		[]byte("hello world"),
		bytes.Repeat([]byte("x"), 9999),
	}
	for _, payload := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
		}
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, bytes.Repeat([]byte("x"), 10000))
	if err != ErrPayloadTooLarge {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
}

func TestReadFrameShortRead(t *testing.T) {
	r := strings.NewReader("0010abc")
	if _, err := ReadFrame(r); err == nil {
		t.Fatal("expected error on short read")
	}
}

func TestReadFrameBadLength(t *testing.T) {
	r := strings.NewReader("00ab")
	if _, err := ReadFrame(r); err != ErrBadLength {
		t.Fatalf("got %v, want ErrBadLength", err)
	}
}

func TestZeroLengthPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bytes, want 0", len(got))
	}
}
