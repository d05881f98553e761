package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Signer computes and checks gateway payment signatures:
// hex(HMAC-SHA256(secret, intentID + "|" + paymentID)).
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer with the gateway key secret.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

func (s *Signer) mac(intentID, paymentID string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(intentID + "|" + paymentID))
	return m.Sum(nil)
}

// Sign returns the hex signature for an intent and payment.
func (s *Signer) Sign(intentID, paymentID string) string {
	return hex.EncodeToString(s.mac(intentID, paymentID))
}

// Verify returns ErrSignatureInvalid unless signature matches.
func (s *Signer) Verify(intentID, paymentID, signature string) error {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return ErrSignatureInvalid
	}
	if subtle.ConstantTimeCompare(s.mac(intentID, paymentID), got) != 1 {
		return ErrSignatureInvalid
	}
	return nil
}
