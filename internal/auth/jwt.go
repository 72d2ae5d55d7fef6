package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the coarse permission tier carried by an authenticated identity.
type Role string

const (
	RoleStudent     Role = "student"
	RoleInstructor  Role = "instructor"
	RoleCoordinator Role = "coordinator"
	RoleManager     Role = "manager"
	RoleCEO         Role = "ceo"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleInstructor, RoleCoordinator, RoleManager, RoleCEO:
		return true
	}
	return false
}

// AdminTier reports whether the role may act on any record regardless
// of ownership.
func (r Role) AdminTier() bool {
	return r == RoleManager || r == RoleCEO
}

// Actor is the already-authenticated identity the engine operates for.
// Session issuance lives elsewhere; the engine only consumes id + role.
type Actor struct {
	ID   string
	Role Role
}

// Claims represents the JWT payload.
type Claims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs an access token for the given identity. Used by dev
// tooling and tests; production tokens come from the auth service.
func Issue(subject string, role Role, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	exp := time.Now().Add(ttl)
	claims := Claims{
		Subject: subject,
		Role:    string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns the actor it identifies.
func Parse(tokenStr, key, issuer string) (Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Actor{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Actor{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Actor{}, errors.New("issuer mismatch")
	}
	actor := Actor{ID: claims.Subject, Role: Role(claims.Role)}
	if actor.ID == "" || !actor.Role.Valid() {
		return Actor{}, errors.New("incomplete identity")
	}
	return actor, nil
}
