// Package creds resolves cloud credentials for the speech and completion APIs.
//
// Two authentication methods are supported, checked in order of preference:
//
//   - API key (simplest, long-lived)
//   - IAM token (short-lived, for production)
//
// A service account key file path may accompany either of them for token
// refresh tooling, but the key-to-IAM-token exchange is not implemented
// here, so a key file alone cannot authenticate and is rejected at
// construction. A Credentials value that reaches the providers is always
// usable.
package creds

import (
	"errors"
	"net/http"
	"os"
)

// Environment variables read by FromEnv.
const (
	EnvAPIKey    = "CLOUD_API_KEY"
	EnvIAMToken  = "CLOUD_IAM_TOKEN"
	EnvFolderID  = "CLOUD_FOLDER_ID"
	EnvSAKeyFile = "CLOUD_SA_KEY_FILE"
)

// ErrNoCredentials is returned when no authentication method is configured.
var ErrNoCredentials = errors.New("creds: no credentials found, provide an API key or IAM token")

// ErrSAKeyExchangeUnsupported is returned when only a service account key
// file is configured. Sending requests would require exchanging the key
// for an IAM token, which this package does not do.
var ErrSAKeyExchangeUnsupported = errors.New("creds: service account key exchange is not implemented, provide an API key or IAM token")

// Credentials holds authentication material for the provider APIs.
// Read-only after construction; share one value across all adapters.
type Credentials struct {
	// APIKey is a long-lived API key.
	APIKey string

	// IAMToken is a short-lived bearer token. Used when APIKey is empty.
	IAMToken string

	// FolderID is the billing/tenant identifier attached to every request.
	FolderID string

	// ServiceAccountKeyFile is a path to a service account key JSON file.
	ServiceAccountKeyFile string
}

// New validates and returns credentials. Fails fast when no
// authentication method is present rather than deferring to first use.
func New(c Credentials) (*Credentials, error) {
	if c.APIKey == "" && c.IAMToken == "" {
		if c.ServiceAccountKeyFile != "" {
			return nil, ErrSAKeyExchangeUnsupported
		}
		return nil, ErrNoCredentials
	}
	return &c, nil
}

// FromEnv builds credentials from environment variables.
func FromEnv() (*Credentials, error) {
	return New(Credentials{
		APIKey:                os.Getenv(EnvAPIKey),
		IAMToken:              os.Getenv(EnvIAMToken),
		FolderID:              os.Getenv(EnvFolderID),
		ServiceAccountKeyFile: os.Getenv(EnvSAKeyFile),
	})
}

// AuthHeader returns the Authorization header value for REST calls.
func (c *Credentials) AuthHeader() string {
	if c.APIKey != "" {
		return "Api-Key " + c.APIKey
	}
	return "Bearer " + c.IAMToken
}

// Apply sets authentication headers on an outgoing request, including
// the folder/billing header when configured.
func (c *Credentials) Apply(h http.Header) {
	h.Set("Authorization", c.AuthHeader())
	if c.FolderID != "" {
		h.Set("x-folder-id", c.FolderID)
	}
}
