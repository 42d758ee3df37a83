package services

import (
	"context"
	"fmt"
	"time"

	"github.com/prudhvinik1/lansync/internal/pocketbase"
)

// reauthWindow is how long before expiry the PocketBase token is renewed.
const reauthWindow = 5 * time.Minute

// Authenticator keeps the upstream session valid.
type Authenticator interface {
	Ensure(ctx context.Context) error
}

// PocketBaseAuth re-authenticates the shared client when its token is about
// to expire. With no identity configured it does nothing and the client
// relies on the collections' public API rules.
type PocketBaseAuth struct {
	client     *pocketbase.Client
	collection string
	identity   string
	password   string
}

func NewPocketBaseAuth(client *pocketbase.Client, collection, identity, password string) *PocketBaseAuth {
	return &PocketBaseAuth{
		client:     client,
		collection: collection,
		identity:   identity,
		password:   password,
	}
}

func (a *PocketBaseAuth) Ensure(ctx context.Context) error {
	if a.identity == "" || !a.client.TokenExpiresSoon(reauthWindow) {
		return nil
	}
	if _, err := a.client.AuthWithPassword(ctx, a.collection, a.identity, a.password); err != nil {
		return fmt.Errorf("failed to refresh pocketbase session: %w", err)
	}
	return nil
}
