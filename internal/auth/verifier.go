package auth

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// Account identifies an authenticated user of the hosted identity provider.
type Account struct {
	// ID is the provider-assigned user ID (Firebase UID).
	ID string

	// Email is the account email, when the token carries one.
	Email string
}

// Verifier checks bearer credentials and resolves them to an Account.
//
// The relay never issues credentials itself. Tokens are minted by the
// hosted identity provider and verified against its public keys.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (Account, error)
}

// Firebase verifies ID tokens against the Firebase project.
type Firebase struct {
	client *fbauth.Client
}

// NewFirebase initialises the Firebase app and returns a token verifier.
//
// credentialsFile is a service account JSON key. When empty, application
// default credentials are used.
func NewFirebase(ctx context.Context, projectID string, credentialsFile string) (*Firebase, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialising firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening auth client: %w", err)
	}

	return &Firebase{client: client}, nil
}

// Verify checks the ID token signature and expiry and returns the account.
func (f *Firebase) Verify(ctx context.Context, idToken string) (Account, error) {
	if strings.TrimSpace(idToken) == "" {
		return Account{}, ErrMissingToken
	}

	token, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Account{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	acct := Account{ID: token.UID}
	if email, ok := token.Claims["email"].(string); ok {
		acct.Email = email
	}
	return acct, nil
}
