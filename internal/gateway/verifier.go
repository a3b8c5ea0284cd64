package gateway

import (
	"crypto/ed25519"
	"encoding/hex"
)

const (
	signatureHeader = "X-Signature-Ed25519"
	timestampHeader = "X-Signature-Timestamp"
)

// Verify checks sig against timestamp followed directly by body. Every
// failure, including malformed keys and signatures, is ErrInvalidSignature.
func Verify(publicKey ed25519.PublicKey, timestamp, body, sig []byte) error {
	if len(publicKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return ErrInvalidSignature
	}

	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)

	if !ed25519.Verify(publicKey, msg, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// ParseSignature decodes the hex signature header.
func ParseSignature(raw string) ([]byte, error) {
	sig, err := hex.DecodeString(raw)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}
