// Package credentials supplies the storefront login identity and secret.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/mohammad-safakhou/bulkcart/config"
)

var ErrIncomplete = errors.New("credentials incomplete")

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c Credentials) Empty() bool {
	return strings.TrimSpace(c.Email) == "" || c.Password == ""
}

// String never prints the password.
func (c Credentials) String() string {
	return "credentials(" + c.Email + ")"
}

type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// Static returns the credentials it was built with. Configuration already
// folds the EMAIL/PASSWORD environment variables into these fields.
type Static Credentials

func (s Static) Credentials(ctx context.Context) (Credentials, error) {
	return Credentials(s), ctx.Err()
}

// SecretAccessor is the subset of the Secret Manager client the provider uses.
type SecretAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// SecretManager reads a JSON payload {"email": ..., "password": ...} from
// projects/{project}/secrets/{secret}/versions/{version}.
type SecretManager struct {
	client  SecretAccessor
	project string
	secret  string
	version string
}

func NewSecretManager(client SecretAccessor, project, secret, version string) *SecretManager {
	if version == "" {
		version = "latest"
	}
	return &SecretManager{client: client, project: project, secret: secret, version: version}
}

func (s *SecretManager) Name() string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", s.project, s.secret, s.version)
}

func (s *SecretManager) Credentials(ctx context.Context) (Credentials, error) {
	name := s.Name()
	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return Credentials{}, fmt.Errorf("accessing secret %s: %w", name, err)
	}
	var c Credentials
	if err := json.Unmarshal(result.GetPayload().GetData(), &c); err != nil {
		return Credentials{}, fmt.Errorf("parsing secret JSON: %w", err)
	}
	if c.Empty() {
		return Credentials{}, fmt.Errorf("secret %s: %w", name, ErrIncomplete)
	}
	return c, nil
}

// New builds the provider selected by cfg.Provider. The close function
// releases the Secret Manager client and is never nil.
func New(ctx context.Context, cfg config.CredentialsConfig) (Provider, func() error, error) {
	noop := func() error { return nil }
	if err := cfg.Validate(); err != nil {
		return nil, noop, err
	}
	switch cfg.Provider {
	case config.CredentialsProviderSecretManager:
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			return nil, noop, fmt.Errorf("creating secret manager client: %w", err)
		}
		return NewSecretManager(client, cfg.GCPProject, cfg.SecretID, cfg.SecretVersion), client.Close, nil
	default:
		return Static{Email: cfg.Email, Password: cfg.Password}, noop, nil
	}
}
