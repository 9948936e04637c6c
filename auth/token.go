package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid seat token")
	ErrExpiredToken = errors.New("seat token expired")
	ErrWrongRoom    = errors.New("seat token belongs to another room")
)

// seatClaims 座位令牌，绑定房间与玩家
type seatClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies seat tokens handed out on room_joined.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer uses secret for HMAC signing. An empty secret means a random key
// that only lives as long as the process.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
	}
	return &Issuer{secret: key, ttl: ttl}, nil
}

// Issue returns a token proving that playerID holds a seat in roomCode.
func (i *Issuer) Issue(roomCode, playerID string, now time.Time) (string, error) {
	claims := seatClaims{
		Room: roomCode,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  playerID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if i.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks the token and returns the player id it was issued for.
func (i *Issuer) Verify(token, roomCode string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &seatClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*seatClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	if claims.Room != roomCode {
		return "", ErrWrongRoom
	}
	return claims.Subject, nil
}
