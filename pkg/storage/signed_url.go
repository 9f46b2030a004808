package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed or tampered download tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrExpiredToken is returned for a well-signed token past its expiry.
	ErrExpiredToken = errors.New("download token expired")
)

// DownloadClaims is the content of a signed download token.
type DownloadClaims struct {
	ExportID  string `json:"id"`
	Path      string `json:"p"`
	ExpiresAt int64  `json:"exp"`
}

// Expiry returns the expiry as a time.
func (c DownloadClaims) Expiry() time.Time {
	return time.Unix(c.ExpiresAt, 0).UTC()
}

// SignedURLSigner issues HMAC-SHA256 signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer. A non-positive ttl defaults to 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a URL-safe token for the export stored at relPath.
func (s *SignedURLSigner) Sign(exportID, relPath string) (string, time.Time, error) {
	if exportID == "" || relPath == "" {
		return "", time.Time{}, errors.New("export id and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	claims := DownloadClaims{ExportID: exportID, Path: relPath, ExpiresAt: s.now().Add(s.ttl).Unix()}
	body, err := json.Marshal(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	payload := base64.RawURLEncoding.EncodeToString(body)
	return payload + "." + s.sign(payload), claims.Expiry(), nil
}

// Verify checks the signature and expiry and returns the embedded claims.
func (s *SignedURLSigner) Verify(token string) (*DownloadClaims, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || payload == "" || len(s.secret) == 0 {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature), []byte(s.sign(payload))) {
		return nil, ErrInvalidToken
	}
	body, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims DownloadClaims
	if err := json.Unmarshal(body, &claims); err != nil || claims.Path == "" {
		return nil, ErrInvalidToken
	}
	if !s.now().Before(claims.Expiry()) {
		return nil, ErrExpiredToken
	}
	return &claims, nil
}

func (s *SignedURLSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
