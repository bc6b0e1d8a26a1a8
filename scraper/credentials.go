package scraper

import (
	"context"

	"github.com/aluiziolira/go-scrape-parts/models"
)

// BlockEvent describes an anti-bot interruption.
type BlockEvent struct {
	Category string
	Position models.Position
	Blocks   int
	Err      error
	Current  Credentials
}

// CredentialProvider supplies replacement credentials after a block. Implementations may
// prompt an operator; returning an error ends the crawl after progress is saved.
type CredentialProvider interface {
	Renew(ctx context.Context, event BlockEvent) (Credentials, error)
}

// CredentialProviderFunc adapts a function to CredentialProvider.
type CredentialProviderFunc func(ctx context.Context, event BlockEvent) (Credentials, error)

// Renew calls f.
func (f CredentialProviderFunc) Renew(ctx context.Context, event BlockEvent) (Credentials, error) {
	return f(ctx, event)
}

// NoRenewal never supplies credentials, so the first block ends the crawl.
type NoRenewal struct{}

// Renew always returns ErrCredentialsUnavailable.
func (NoRenewal) Renew(context.Context, BlockEvent) (Credentials, error) {
	return Credentials{}, ErrCredentialsUnavailable
}

// CredentialSetter applies renewed credentials to the transport.
type CredentialSetter interface {
	SetCredentials(Credentials) error
}
