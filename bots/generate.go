package bots

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// TokenLength is the length of a bot token.
const TokenLength = 64

// 64 symbols, so a random byte masked to six bits maps onto it without bias.
const urlAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// NewID returns a time-ordered, globally unique identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewToken returns a fresh random bot token.
func NewToken() (string, error) {
	return randomString(TokenLength)
}

// NewInviteCode returns a random invite code of length n.
func NewInviteCode(n int) (string, error) {
	return randomString(n)
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = urlAlphabet[b&63]
	}
	return string(buf), nil
}
