package crypto

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/labweave/labweave/internal/config"
)

// keyCacheTTL is how long a fetched key is served before Vault is asked again.
const keyCacheTTL = 15 * time.Minute

// VaultKeyPath is the KV v2 mount path under which content keys live.
const VaultKeyPath = "secret/data/labweave/content-keys"

// keyIDPattern keeps key ids to a single safe path segment.
var keyIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type cachedKey struct {
	key       []byte
	fetchedAt time.Time
}

// VaultProvider fetches content keys from HashiCorp Vault's KV v2 engine.
// Each secret stores a base64 32-byte key in its "key" field.
type VaultProvider struct {
	addr   string
	token  config.Secret
	client *http.Client
	cache  sync.Map
	group  singleflight.Group
	now    func() time.Time
}

// NewVaultProvider creates a VaultProvider for the Vault server at addr.
func NewVaultProvider(addr string, token config.Secret) *VaultProvider {
	return &VaultProvider{
		addr:  strings.TrimRight(addr, "/"),
		token: token,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		now: time.Now,
	}
}

// GetKey returns the key named keyID, from cache when it is fresh.
// Concurrent misses for one id share a single Vault request.
func (p *VaultProvider) GetKey(ctx context.Context, keyID string) ([]byte, error) {
	if key, ok := p.cached(keyID); ok {
		return key, nil
	}

	val, err, _ := p.group.Do(keyID, func() (any, error) {
		if key, ok := p.cached(keyID); ok {
			return key, nil
		}

		k, err := p.fetchKey(ctx, keyID)
		if err != nil {
			return nil, err
		}

		p.cache.Store(keyID, cachedKey{key: append([]byte(nil), k...), fetchedAt: p.now()})

		return k, nil
	})
	if err != nil {
		return nil, err
	}

	key, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("crypto/vault: unexpected singleflight result type %T", val)
	}

	return append([]byte(nil), key...), nil
}

func (p *VaultProvider) cached(keyID string) ([]byte, bool) {
	v, ok := p.cache.Load(keyID)
	if !ok {
		return nil, false
	}

	entry, _ := v.(cachedKey) //nolint:errcheck // only cachedKey is stored.
	if p.now().Sub(entry.fetchedAt) >= keyCacheTTL {
		p.cache.Delete(keyID)
		return nil, false
	}

	return append([]byte(nil), entry.key...), true
}

func (p *VaultProvider) fetchKey(ctx context.Context, keyID string) ([]byte, error) {
	if !keyIDPattern.MatchString(keyID) {
		return nil, fmt.Errorf("crypto/vault: invalid key id %q", keyID)
	}

	reqURL := fmt.Sprintf("%s/v1/%s/%s", p.addr, VaultKeyPath, url.PathEscape(keyID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("crypto/vault: create request: %w", err)
	}

	req.Header.Set("X-Vault-Token", p.token.Value())

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crypto/vault: request failed: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, 1<<20)

	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, body)
		return nil, fmt.Errorf("crypto/vault: no key %q at %s", keyID, VaultKeyPath)
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(body)
		return nil, fmt.Errorf("crypto/vault: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result struct {
		Data struct {
			Data map[string]string `json:"data"`
		} `json:"data"`
	}

	if err := json.NewDecoder(body).Decode(&result); err != nil {
		return nil, fmt.Errorf("crypto/vault: decode response: %w", err)
	}

	b64Key := result.Data.Data["key"]
	if b64Key == "" {
		return nil, fmt.Errorf("crypto/vault: key field missing for %q", keyID)
	}

	key, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("crypto/vault: decode base64 key: %w", err)
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("crypto/vault: key must be 32 bytes, got %d", len(key))
	}

	return key, nil
}
