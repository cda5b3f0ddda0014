package evidence

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken signals the download token failed verification.
	ErrInvalidToken = errors.New("evidence: invalid token")
	// ErrExpiredToken signals the download token's window has passed.
	ErrExpiredToken = errors.New("evidence: token expired")
)

// Signer mints time-limited download URLs for stored evidence paths. Tokens
// are HS256 JWTs scoping a single path; the blob gateway verifies them
// before streaming the file.
type Signer struct {
	baseURL string
	secret  []byte
	now     func() time.Time
}

// NewSigner builds a signer issuing URLs under baseURL (e.g.
// "https://files.example.com/evidence").
func NewSigner(baseURL string, secret string) *Signer {
	return &Signer{
		baseURL: baseURL,
		secret:  []byte(secret),
		now:     time.Now,
	}
}

func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// SignURL returns a URL granting read access to path for ttl.
func (s *Signer) SignURL(path string, ttl time.Duration) (string, error) {
	if path == "" {
		return "", fmt.Errorf("evidence: empty path")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("evidence: non-positive ttl")
	}

	now := s.now()
	claims := jwt.MapClaims{
		"path": path,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("evidence: sign %s: %w", path, err)
	}

	return fmt.Sprintf("%s?path=%s&token=%s", s.baseURL, url.QueryEscape(path), url.QueryEscape(token)), nil
}

// Verify checks a download token and returns the path it grants.
func (s *Signer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	path, ok := claims["path"].(string)
	if !ok || path == "" {
		return "", ErrInvalidToken
	}
	return path, nil
}
