// Package streamtoken implements the Token Service (C7): HMAC-signed,
// single-job-scoped bearer tokens for stream authentication. Generalises
// the teacher's signAccessToken/validateJWT
// (internal/server/middleware.go) from multi-claim user sessions to
// single-purpose job-scoped tokens.
package streamtoken

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the stream token payload (spec.md §3): {sub, exp, jti, scope,
// job_id}, scope = "job:<id>:read".
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
	JobID string `json:"job_id"`
}

// Service issues and verifies stream tokens.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New constructs a Token Service with the given signing secret and TTL.
func New(secret []byte, ttl time.Duration) *Service {
	return &Service{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs a token scoped to jobID. The caller is responsible for
// having already verified the API key (§4.7) — Issue itself does not
// re-check it.
func (s *Service) Issue(jobID string) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "api_client",
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Scope: fmt.Sprintf("job:%s:read", jobID),
		JobID: jobID,
	}
	claims.ID = fmt.Sprintf("%s_%d", jobID, now.Unix())

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates signature, expiry, and structural fields, returning
// the claims on success. Any failure returns (nil, err) — the stream
// handshake translates that into a policy-violation close.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("streamtoken: verify: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("streamtoken: token invalid")
	}
	if claims.JobID == "" || claims.Scope != fmt.Sprintf("job:%s:read", claims.JobID) {
		return nil, fmt.Errorf("streamtoken: malformed scope claim")
	}
	return claims, nil
}
