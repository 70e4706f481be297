package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// URLSigner generates and verifies HMAC-SHA256 signed URLs for time-limited
// file access without auth headers (web audio players can't set them).
type URLSigner struct {
	secret []byte
}

// NewURLSigner creates a signer. The secret must be non-empty.
func NewURLSigner(secret string) (*URLSigner, error) {
	if secret == "" {
		return nil, errors.New("URL signing requires a secret")
	}
	return &URLSigner{secret: []byte(secret)}, nil
}

func (s *URLSigner) sign(filePath string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", filePath, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedURL returns a relative signed URL for a file, valid for ttl.
func (s *URLSigner) SignedURL(filePath string, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	sig := s.sign(filePath, expires)
	params := url.Values{}
	params.Set("file", filePath)
	params.Set("expires", fmt.Sprintf("%d", expires))
	return fmt.Sprintf("/audio/signed/%s?%s", sig, params.Encode())
}

// Verify checks a signature against the file path and expiry. The
// comparison is constant-time; expiry is checked first so expired URLs are
// rejected regardless of signature validity.
func (s *URLSigner) Verify(signature, filePath string, expires int64) error {
	if time.Now().Unix() > expires {
		return errors.New("URL has expired")
	}
	expected := s.sign(filePath, expires)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return errors.New("invalid signature")
	}
	return nil
}
