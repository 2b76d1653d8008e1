package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/tee-ta-bridge/interfaces"
)

// VaultStore keeps failure records in a HashiCorp Vault KV v2 secrets engine.
// Each record is one secret at {mount}/data/{path}/{name} holding the base64 blob
// under "content"; a KV v2 write replaces the whole secret.
type VaultStore struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	timeout     time.Duration
	log         *slog.Logger
	locationURI string
}

// NewVaultStore creates a Vault failure store.
//
// Parameters:
//   - address: Vault server address (e.g. https://vault.example.com:8200)
//   - mountPath: KV v2 mount path (e.g. "secret")
//   - dataPath: Path within the mount (e.g. "gatekeeper")
//   - token: Vault token; when empty the client keeps VAULT_TOKEN from the environment
func NewVaultStore(address, mountPath, dataPath, token string, log *slog.Logger) (*VaultStore, error) {
	config := api.DefaultConfig()
	config.Address = address
	config.Timeout = defaultRemoteTimeout

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}

	mountPath = strings.Trim(mountPath, "/")
	dataPath = strings.Trim(dataPath, "/")
	if mountPath == "" || dataPath == "" {
		return nil, fmt.Errorf("%w: vault location needs both a mount and a path", interfaces.ErrInvalidLocationURI)
	}

	store := &VaultStore{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		timeout:     defaultRemoteTimeout,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(address, "https://"), "http://"), mountPath, dataPath),
	}
	if err := store.checkMount(); err != nil {
		return nil, err
	}
	return store, nil
}

// checkMount makes sure the mount is a KV v2 engine. Vault answers reads below an
// unmounted path with an empty 404, so without this a wrong mount would look like
// a store with no records.
func (b *VaultStore) checkMount() error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	path := "sys/internal/ui/mounts/" + b.mountPath
	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to look up Vault mount", slog.String("mount", b.mountPath), "err", err)
		return fmt.Errorf("%w: failed to look up Vault mount %q: %v", interfaces.ErrInternal, b.mountPath, err)
	}
	if secret == nil || secret.Data == nil {
		return fmt.Errorf("%w: Vault mount %q does not exist", interfaces.ErrInternal, b.mountPath)
	}

	mountType, _ := secret.Data["type"].(string)
	options, _ := secret.Data["options"].(map[string]interface{})
	version, _ := options["version"].(string)
	if mountType != "kv" || version != "2" {
		return fmt.Errorf("%w: Vault mount %q is not a KV v2 engine (type %q, version %q)", interfaces.ErrInternal, b.mountPath, mountType, version)
	}
	return nil
}

// Read fetches the latest version of the named record.
func (b *VaultStore) Read(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	path := b.secretPath("data", name)
	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: failed to read from Vault: %v", interfaces.ErrInternal, err)
	}
	if secret == nil || secret.Data == nil {
		b.log.Debug("Failure record not found in Vault", slog.String("path", path))
		return nil, interfaces.ErrNotFound
	}

	// KV v2 wraps the stored map under "data"; a deleted latest version has nil data.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, interfaces.ErrNotFound
	}
	content, ok := data["content"].(string)
	if !ok {
		b.log.Error("Content key not found in Vault data", slog.String("path", path))
		return nil, fmt.Errorf("%w: content key not found in Vault data", interfaces.ErrInternal)
	}

	blob, err := base64.StdEncoding.DecodeString(content)
	if err != nil {
		b.log.Error("Invalid content encoding in Vault data", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: invalid content encoding in Vault data: %v", interfaces.ErrInternal, err)
	}
	return blob, nil
}

// Write stores a new version of the named record.
func (b *VaultStore) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	path := b.secretPath("data", name)
	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}
	if _, err := b.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		b.log.Error("Failed to write to Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: failed to write to Vault: %v", interfaces.ErrInternal, err)
	}
	return nil
}

// Delete removes the named record with all of its versions.
func (b *VaultStore) Delete(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	path := b.secretPath("metadata", name)
	existing, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Warn("Failed to read metadata from Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: failed to read metadata from Vault: %v", interfaces.ErrInternal, err)
	}
	if existing == nil {
		return interfaces.ErrNotFound
	}

	if _, err := b.client.Logical().DeleteWithContext(ctx, path); err != nil {
		b.log.Warn("Failed to delete from Vault", slog.String("path", path), "err", err)
		return fmt.Errorf("%w: failed to delete from Vault: %v", interfaces.ErrInternal, err)
	}
	return nil
}

// List returns the record names under the store path. Sub-folders are skipped.
func (b *VaultStore) List() (iter.Seq[string], error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	path := fmt.Sprintf("%s/metadata/%s", b.mountPath, b.dataPath)
	secret, err := b.client.Logical().ListWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to list Vault path", slog.String("path", path), "err", err)
		return nil, fmt.Errorf("%w: failed to list Vault path: %v", interfaces.ErrInternal, err)
	}

	var keys []interface{}
	if secret != nil && secret.Data != nil {
		keys, _ = secret.Data["keys"].([]interface{})
	}

	consumed := false
	return func(yield func(string) bool) {
		if consumed {
			return
		}
		consumed = true

		for _, k := range keys {
			name, ok := k.(string)
			if !ok || validateName(name) != nil {
				b.log.Warn("Skipping Vault key that is not a failure record", slog.Any("key", k))
				continue
			}
			if !yield(name) {
				return
			}
		}
	}, nil
}

// LocationURI returns the URI that identifies this store.
func (b *VaultStore) LocationURI() string {
	return b.locationURI
}

func (b *VaultStore) secretPath(kind, name string) string {
	return fmt.Sprintf("%s/%s/%s/%s", b.mountPath, kind, b.dataPath, name)
}
