package bots

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"botforge/apperr"
	"botforge/models"
	"botforge/store"
)

var reservedNames = map[string]bool{
	"admin":     true,
	"system":    true,
	"everyone":  true,
	"here":      true,
	"moderator": true,
	"botforge":  true,
}

// NormalizeUsername trims name and checks it against the username rules.
func NormalizeUsername(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < 2 || n > 32 {
		return "", apperr.New(apperr.ValidationFailed, "username must be between 2 and 32 characters")
	}
	if !models.UsernamePattern.MatchString(name) {
		return "", apperr.New(apperr.ValidationFailed, "username contains invalid characters")
	}
	if reservedNames[strings.ToLower(name)] {
		return "", apperr.New(apperr.UsernameTaken, "username is reserved")
	}
	return name, nil
}

// FindDiscriminator returns a discriminator not yet used with username.
// preferred is kept when it is still free.
func FindDiscriminator(ctx context.Context, s store.Store, username, preferred string) (string, error) {
	used, err := s.FetchDiscriminators(ctx, username)
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(used))
	for _, d := range used {
		taken[d] = true
	}
	if preferred != "" && !taken[preferred] {
		return preferred, nil
	}
	if len(taken) >= 9999 {
		return "", apperr.New(apperr.UsernameTaken, "no discriminators left for username")
	}

	// Random probing first, then a scan so a nearly full username still
	// gets the remaining values.
	for i := 0; i < 32; i++ {
		d := fmt.Sprintf("%04d", rand.IntN(9999)+1)
		if !taken[d] {
			return d, nil
		}
	}
	for n := 1; n <= 9999; n++ {
		d := fmt.Sprintf("%04d", n)
		if !taken[d] {
			return d, nil
		}
	}
	return "", apperr.New(apperr.UsernameTaken, "no discriminators left for username")
}
