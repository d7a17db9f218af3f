//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/kvpool/pkg/cache"
	"github.com/Sternrassler/kvpool/pkg/direct"
	"github.com/Sternrassler/kvpool/pkg/kverr"
	"github.com/Sternrassler/kvpool/pkg/pool"
	"github.com/Sternrassler/kvpool/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns its connection URL plus
// an admin client for inspecting server state.
func setupRedis(t *testing.T) (string, *redis.Client) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	addr := host + ":" + port.Port()
	admin := redis.NewClient(&redis.Options{Addr: addr})

	t.Cleanup(func() {
		admin.Close()
		container.Terminate(ctx)
	})

	return "redis://" + addr + "/", admin
}

type providerCase struct {
	name  string
	build func(t *testing.T, d transport.Dialer) cache.Provider
}

func providers(cfg func(name string) pool.Config) []providerCase {
	return []providerCase{
		{"direct", func(t *testing.T, d transport.Dialer) cache.Provider {
			p, err := direct.New(d, zerolog.Nop())
			if err != nil {
				t.Fatalf("direct.New: %v", err)
			}
			return p
		}},
		{"mobc", func(t *testing.T, d transport.Dialer) cache.Provider {
			p, err := pool.NewAsync(cfg("mobc"), d, zerolog.Nop())
			if err != nil {
				t.Fatalf("NewAsync: %v", err)
			}
			t.Cleanup(func() { p.Close() })
			return p
		}},
		{"r2d2", func(t *testing.T, d transport.Dialer) cache.Provider {
			p, err := pool.NewBlocking(cfg("r2d2"), d, zerolog.Nop())
			if err != nil {
				t.Fatalf("NewBlocking: %v", err)
			}
			t.Cleanup(func() { p.Close() })
			if err := p.Warm(context.Background()); err != nil {
				t.Fatalf("Warm: %v", err)
			}
			return p
		}},
	}
}

// TestProviders_RoundTrip runs the demo set-then-get flow against a real
// Redis for every provider.
func TestProviders_RoundTrip(t *testing.T) {
	url, admin := setupRedis(t)

	dialer, err := transport.NewRedisDialer(url, transport.Options{DialTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewRedisDialer: %v", err)
	}

	for _, pc := range providers(pool.DefaultConfig) {
		t.Run(pc.name, func(t *testing.T) {
			ctx := context.Background()
			kv := cache.NewManager(pc.name, pc.build(t, dialer), zerolog.Nop())

			key := pc.name + "_hello"
			if err := kv.SetStr(ctx, key, pc.name+"_world", 60); err != nil {
				t.Fatalf("SetStr: %v", err)
			}

			got, err := kv.GetStr(ctx, key)
			if err != nil {
				t.Fatalf("GetStr: %v", err)
			}
			if got != pc.name+"_world" {
				t.Errorf("GetStr = %q, want %q", got, pc.name+"_world")
			}

			ttl, err := admin.TTL(ctx, key).Result()
			if err != nil {
				t.Fatalf("TTL: %v", err)
			}
			if ttl <= 0 || ttl > 60*time.Second {
				t.Errorf("TTL = %s, want (0, 60s]", ttl)
			}

			if _, err := kv.GetStr(ctx, "does-not-exist"); !kverr.IsStage(err, kverr.StageDecode) {
				t.Errorf("missing key: expected type_decoding error, got %v", err)
			}

			if err := admin.RPush(ctx, pc.name+"_list", "a").Err(); err != nil {
				t.Fatalf("RPush: %v", err)
			}
			if _, err := kv.GetStr(ctx, pc.name+"_list"); !kverr.IsStage(err, kverr.StageCommand) {
				t.Errorf("wrong type: expected command_execution error, got %v", err)
			}
		})
	}
}

// TestPools_BoundedConnections checks the server never sees more client
// sessions than MaxOpen under contention.
func TestPools_BoundedConnections(t *testing.T) {
	url, admin := setupRedis(t)

	dialer, err := transport.NewRedisDialer(url, transport.Options{})
	if err != nil {
		t.Fatalf("NewRedisDialer: %v", err)
	}

	const maxOpen = 4
	small := func(name string) pool.Config {
		cfg := pool.DefaultConfig(name)
		cfg.MaxOpen, cfg.MaxIdle, cfg.MinIdle = maxOpen, maxOpen, 0
		cfg.AcquireTimeout = 10 * time.Second
		return cfg
	}

	for _, pc := range providers(small)[1:] {
		t.Run(pc.name, func(t *testing.T) {
			ctx := context.Background()
			kv := cache.NewManager(pc.name, pc.build(t, dialer), zerolog.Nop())

			baseline, err := admin.ClientList(ctx).Result()
			if err != nil {
				t.Fatalf("ClientList: %v", err)
			}
			before := countLines(baseline)

			var wg sync.WaitGroup
			errs := make(chan error, 64)
			for w := 0; w < 16; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < 25; i++ {
						key := fmt.Sprintf("%s:%d:%d", pc.name, w, i)
						if err := kv.SetStr(ctx, key, "v", 30); err != nil {
							errs <- err
							return
						}
					}
				}(w)
			}
			wg.Wait()
			close(errs)

			for err := range errs {
				t.Errorf("SetStr under contention: %v", err)
			}

			list, err := admin.ClientList(ctx).Result()
			if err != nil {
				t.Fatalf("ClientList: %v", err)
			}
			if extra := countLines(list) - before; extra > maxOpen {
				t.Errorf("server sees %d extra client sessions, want <= %d", extra, maxOpen)
			}
		})
	}
}

func countLines(s string) int {
	n := 0
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}
