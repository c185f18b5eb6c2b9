// Package cryptosuite implements the proconq chat transport's cipher suite
// (§4.B): a 2048-bit RSA/OAEP keypair used once to bootstrap a 256-bit
// AES-CBC session key. Unlike the Python original, which keeps key, IV, and
// cipher object as mutable fields re-seeded on every call, each Encrypt/
// Decrypt here builds a fresh block-cipher context from immutable key
// material (see DESIGN.md, "Cipher key storage").
package cryptosuite

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// RSAKeySize is the bit length of the asymmetric keypair (§4.B).
const RSAKeySize = 2048

// RSACipher holds a server-owned RSA keypair used exactly once per session
// to receive the client's AES key and IV under OAEP encryption.
type RSACipher struct {
	priv *rsa.PrivateKey
}

// NewRSACipher generates a fresh 2048-bit RSA keypair.
func NewRSACipher() (*RSACipher, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeySize)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &RSACipher{priv: priv}, nil
}

// PublicKeyPEM returns the public key in a text-serialized form (PEM) that
// survives a round trip through the peer's printable-representation parser.
func (c *RSACipher) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&c.priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// Decrypt OAEP-decrypts data with the server's private key.
func (c *RSACipher) Decrypt(data []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, c.priv, data, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa oaep decrypt: %w", err)
	}
	return plaintext, nil
}

// ParsePublicKeyPEM parses a PEM-encoded public key as produced by
// PublicKeyPEM, for use by the peer (the client only ever encrypts).
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("decode pem: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaPub, nil
}

// EncryptWithPublicKey OAEP-encrypts data under peerKey. Used by the client
// to send its AES key/IV to the server (§4.E AWAIT_AESKEY).
func EncryptWithPublicKey(peerKey *rsa.PublicKey, data []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, peerKey, data, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa oaep encrypt: %w", err)
	}
	return ciphertext, nil
}
