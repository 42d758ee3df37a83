package pocketbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prudhvinik1/lansync/internal/models"
)

// SuperusersCollection is the auth collection for admin accounts.
const SuperusersCollection = "_superusers"

var ErrNoTokenExpiry = errors.New("pocketbase: token has no exp claim")

type AuthResult struct {
	Token  string        `json:"token"`
	Record models.Record `json:"record"`
}

// AuthWithPassword authenticates against an auth collection and stores the
// returned token on the client for subsequent requests.
func (c *Client) AuthWithPassword(ctx context.Context, collection, identity, password string) (*AuthResult, error) {
	body := map[string]string{
		"identity": identity,
		"password": password,
	}

	var out AuthResult
	if err := c.do(ctx, http.MethodPost, collectionPath(collection)+"/auth-with-password", nil, body, &out); err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	c.SetToken(out.Token)

	c.log.Debug("authenticated with pocketbase")
	return &out, nil
}

// TokenExpiry reads the exp claim without verifying the signature; the
// server is the only party that can verify it.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, ErrNoTokenExpiry
	}
	return exp.Time, nil
}

// TokenExpiresSoon reports whether the stored token is missing, unreadable,
// or expires within d.
func (c *Client) TokenExpiresSoon(d time.Duration) bool {
	token := c.Token()
	if token == "" {
		return true
	}
	exp, err := TokenExpiry(token)
	if err != nil {
		return true
	}
	return time.Until(exp) < d
}
