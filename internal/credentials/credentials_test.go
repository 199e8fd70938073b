package credentials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/mohammad-safakhou/bulkcart/config"
)

type stubAccessor struct {
	payload []byte
	err     error
	names   []string
}

func (s *stubAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.names = append(s.names, req.GetName())
	if s.err != nil {
		return nil, s.err
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: s.payload},
	}, nil
}

func TestSecretManagerParsesPayload(t *testing.T) {
	stub := &stubAccessor{payload: []byte(`{"email":"buyer@example.com","password":"s3cret"}`)}
	p := NewSecretManager(stub, "proj", "storefront-login", "")

	c, err := p.Credentials(context.Background())
	if err != nil {
		t.Fatalf("Credentials: %v", err)
	}
	if c.Email != "buyer@example.com" || c.Password != "s3cret" {
		t.Fatalf("unexpected credentials %+v", c)
	}
	if len(stub.names) != 1 || stub.names[0] != "projects/proj/secrets/storefront-login/versions/latest" {
		t.Fatalf("unexpected secret names %v", stub.names)
	}
}

func TestSecretManagerErrors(t *testing.T) {
	cases := map[string]*stubAccessor{
		"access":     {err: errors.New("permission denied")},
		"bad json":   {payload: []byte("nope")},
		"incomplete": {payload: []byte(`{"email":"buyer@example.com"}`)},
	}
	for name, stub := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewSecretManager(stub, "p", "s", "3").Credentials(context.Background()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	_, err := NewSecretManager(cases["incomplete"], "p", "s", "3").Credentials(context.Background())
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestNewEnvProvider(t *testing.T) {
	p, closeFn, err := New(context.Background(), config.CredentialsConfig{Provider: config.CredentialsProviderEnv, Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closeFn()
	c, err := p.Credentials(context.Background())
	if err != nil || c.Email != "a@b.c" || c.Password != "pw" {
		t.Fatalf("unexpected %+v %v", c, err)
	}
}

func TestCredentialsStringHidesPassword(t *testing.T) {
	c := Credentials{Email: "a@b.c", Password: "hunter2"}
	if strings.Contains(c.String(), "hunter2") {
		t.Fatalf("password leaked: %s", c)
	}
	if !(Credentials{Email: "a@b.c"}).Empty() || c.Empty() {
		t.Fatalf("Empty misreports")
	}
}
