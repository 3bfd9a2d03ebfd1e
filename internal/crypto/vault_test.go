package crypto_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labweave/labweave/internal/config"
	"github.com/labweave/labweave/internal/crypto"
)

var vaultKey = bytes32('k')

func bytes32(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b
	}

	return out
}

// fakeVault serves KV v2 reads for the keys map and counts requests.
func fakeVault(t *testing.T, keys map[string][]byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)

		if r.Header.Get("X-Vault-Token") != "root-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/v1/"+crypto.VaultKeyPath+"/")

		key, ok := keys[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		resp := map[string]any{"data": map[string]any{"data": map[string]string{
			"key": base64.StdEncoding.EncodeToString(key),
		}}}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func TestVaultProvider_FetchesAndCaches(t *testing.T) {
	srv, hits := fakeVault(t, map[string][]byte{"default": vaultKey})
	p := crypto.NewVaultProvider(srv.URL+"/", config.Secret("root-token"))
	ctx := context.Background()

	for range 3 {
		key, err := p.GetKey(ctx, "default")
		if err != nil {
			t.Fatalf("GetKey: %v", err)
		}

		if string(key) != string(vaultKey) {
			t.Fatalf("key = %x", key)
		}
	}

	if got := hits.Load(); got != 1 {
		t.Errorf("vault requests = %d, want 1", got)
	}
}

func TestVaultProvider_RefetchesAfterTTL(t *testing.T) {
	srv, hits := fakeVault(t, map[string][]byte{"default": vaultKey})
	p := crypto.NewVaultProvider(srv.URL, config.Secret("root-token"))

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p.SetClock(func() time.Time { return now })

	ctx := context.Background()

	if _, err := p.GetKey(ctx, "default"); err != nil {
		t.Fatalf("GetKey: %v", err)
	}

	now = now.Add(16 * time.Minute)

	if _, err := p.GetKey(ctx, "default"); err != nil {
		t.Fatalf("GetKey after TTL: %v", err)
	}

	if got := hits.Load(); got != 2 {
		t.Errorf("vault requests = %d, want 2", got)
	}
}

func TestVaultProvider_Errors(t *testing.T) {
	srv, hits := fakeVault(t, map[string][]byte{"short": []byte("too-short")})
	ctx := context.Background()

	p := crypto.NewVaultProvider(srv.URL, config.Secret("root-token"))

	if _, err := p.GetKey(ctx, "missing"); err == nil || !strings.Contains(err.Error(), "no key") {
		t.Errorf("missing key err = %v", err)
	}

	if _, err := p.GetKey(ctx, "short"); err == nil || !strings.Contains(err.Error(), "32 bytes") {
		t.Errorf("short key err = %v", err)
	}

	before := hits.Load()
	if _, err := p.GetKey(ctx, "../sys/seal"); err == nil {
		t.Error("expected error for path-like key id")
	}

	if hits.Load() != before {
		t.Error("invalid key id must not reach vault")
	}

	bad := crypto.NewVaultProvider(srv.URL, config.Secret("wrong"))
	if _, err := bad.GetKey(ctx, "short"); err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("bad token err = %v", err)
	}
}
