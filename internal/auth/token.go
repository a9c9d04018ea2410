// Package auth covers the two identity concerns of the gateway: signed
// session tokens presented over the RPC connection, and password-based
// account verification against the store.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SecretSize is the required HMAC secret length in bytes.
const SecretSize = 32

// Token verification error kinds. Expiry is deliberately not checked here;
// callers compare Exp against the wall clock themselves.
var (
	// ErrMalformedToken is returned for a wrong segment count, invalid
	// base64 or invalid JSON in the header or payload.
	ErrMalformedToken = errors.New("malformed token")
	// ErrUnsupportedAlgorithm is returned when the header names any
	// algorithm other than HS256.
	ErrUnsupportedAlgorithm = errors.New("unsupported token algorithm")
	// ErrBadSignature is returned when the signature does not match.
	ErrBadSignature = errors.New("bad token signature")
)

// TokenPayload is the claim set carried by a session token.
type TokenPayload struct {
	// Sub identifies the principal: the account username.
	Sub string `json:"sub"`
	// Iat is the issue time, UNIX seconds.
	Iat int64 `json:"iat"`
	// Exp is the expiry time, UNIX seconds.
	Exp int64 `json:"exp"`
}

type tokenHeader struct {
	Typ string `json:"typ"`
	Alg string `json:"alg"`
}

// TokenService builds and verifies compact HS256 tokens
// (header.payload.signature, base64url without padding).
type TokenService struct {
	secret []byte
}

// NewTokenService creates a token service from a 32-byte secret. The secret
// comes from configuration; it is never generated at process start.
func NewTokenService(secret []byte) (*TokenService, error) {
	if len(secret) != SecretSize {
		return nil, fmt.Errorf("token secret must be %d bytes, got %d", SecretSize, len(secret))
	}
	return &TokenService{secret: secret}, nil
}

// Build signs payload and returns the compact token string.
func (s *TokenService) Build(payload TokenPayload) string {
	headerJSON, _ := json.Marshal(tokenHeader{Typ: "JWT", Alg: "HS256"})
	payloadJSON, _ := json.Marshal(payload)

	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)

	msg := headerB64 + "." + payloadB64
	sig := s.sign(msg)
	return msg + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// Verify checks the token's structure and signature and returns the
// extracted payload. The signature comparison is constant time.
func (s *TokenService) Verify(token string) (TokenPayload, error) {
	var payload TokenPayload

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return payload, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	// All three segments must be valid base64 before any deeper check, so
	// a garbled payload reads as malformed rather than as a forgery.
	headerJSON, err := decodeSegment(parts[0])
	if err != nil {
		return payload, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	payloadJSON, err := decodeSegment(parts[1])
	if err != nil {
		return payload, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	sig, err := decodeSegment(parts[2])
	if err != nil {
		return payload, fmt.Errorf("%w: signature: %v", ErrMalformedToken, err)
	}

	var header tokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return payload, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	if header.Typ != "JWT" {
		return payload, fmt.Errorf("%w: typ %q", ErrMalformedToken, header.Typ)
	}
	if header.Alg != "HS256" {
		return payload, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, header.Alg)
	}

	expected := s.sign(parts[0] + "." + parts[1])
	if !hmac.Equal(sig, expected) {
		return payload, ErrBadSignature
	}

	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return payload, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}

	return payload, nil
}

func (s *TokenService) sign(msg string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

// decodeSegment accepts both padded and stripped base64url; tokens built
// here never carry padding but foreign issuers sometimes do.
func decodeSegment(seg string) ([]byte, error) {
	if strings.ContainsRune(seg, '=') {
		return base64.URLEncoding.DecodeString(seg)
	}
	return base64.RawURLEncoding.DecodeString(seg)
}
