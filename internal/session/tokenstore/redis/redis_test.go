package redis_tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/mohammad-safakhou/bulkcart/internal/session/models"
	browsermodels "github.com/mohammad-safakhou/bulkcart/tools/browser/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host: %v", err)
	}
	port, err := c.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	return host + ":" + port.Port()
}

func TestRedisTokenStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test")
	}
	ctx := context.Background()
	client, err := Conn(ctx, startRedis(t, ctx), "", 0, 5*time.Second)
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	s := NewRedisTokenStore(client, "bulkcart:test:session", time.Minute)
	defer s.Close()

	if _, ok, err := s.Load(ctx); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	tok := models.Token{
		Cookies:  []browsermodels.Cookie{{Name: "osCsid", Value: "abc", Domain: "shop.test", Path: "/"}},
		Identity: "buyer@example.com",
		SavedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := s.Save(ctx, tok); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ttl, err := client.TTL(ctx, "bulkcart:test:session").Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v (err %v)", ttl, err)
	}
	got, ok, err := s.Load(ctx)
	if err != nil || !ok || got.Identity != tok.Identity || len(got.Cookies) != 1 {
		t.Fatalf("Load: %+v ok=%v err=%v", got, ok, err)
	}
	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Fatalf("token survived delete")
	}
}

func TestConnFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Conn(ctx, "127.0.0.1:1", "", 0, 200*time.Millisecond); err == nil {
		t.Fatalf("expected connection error")
	}
}
