package content

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// UnsubscribeSigner issues and checks unsubscribe tokens. A token is the hex
// HMAC-SHA256 of the lead id under a shared secret.
type UnsubscribeSigner struct {
	secret  []byte
	baseURL string
}

// NewUnsubscribeSigner creates a signer. baseURL is the public unsubscribe
// endpoint; the lead id is appended as a path segment.
func NewUnsubscribeSigner(secret, baseURL string) *UnsubscribeSigner {
	return &UnsubscribeSigner{secret: []byte(secret), baseURL: strings.TrimRight(baseURL, "/")}
}

// Token returns the signature for a lead id.
func (s *UnsubscribeSigner) Token(leadID string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(leadID))
	return hex.EncodeToString(h.Sum(nil))
}

// URL returns the signed unsubscribe link for a lead.
func (s *UnsubscribeSigner) URL(leadID string) string {
	return fmt.Sprintf("%s/%s?token=%s", s.baseURL, url.PathEscape(leadID), s.Token(leadID))
}

// Verify recomputes the token and compares in constant time.
func (s *UnsubscribeSigner) Verify(leadID, token string) bool {
	return hmac.Equal([]byte(s.Token(leadID)), []byte(token))
}
