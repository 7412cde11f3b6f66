// Package credentials persists provider API keys so they can be rotated
// without redeploying.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"imagestudio/internal/infra"
	"imagestudio/internal/sqlinline"
)

const ProviderGemini = "gemini"

var ErrEmptyKey = errors.New("credentials: api key is required")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Key returns the active key for provider, or "" when none is stored or the
// stored one was revoked.
func (s *Store) Key(ctx context.Context, provider string) (string, error) {
	var key string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectProviderKey, provider).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s key: %w", provider, err)
	}
	return strings.TrimSpace(key), nil
}

// Rotate stores key for provider. Metadata is merged into what is already
// recorded.
func (s *Store) Rotate(ctx context.Context, provider, key string, metadata map[string]string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["fingerprint"] = fingerprint(key)
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertProviderKey, provider, key, raw); err != nil {
		return fmt.Errorf("credentials: rotate %s key: %w", provider, err)
	}
	return nil
}

// Revoke disables the stored key for provider. It reports whether a key was
// active.
func (s *Store) Revoke(ctx context.Context, provider string) (bool, error) {
	tag, err := s.sql.Exec(ctx, sqlinline.QRevokeProviderKey, provider)
	if err != nil {
		return false, fmt.Errorf("credentials: revoke %s key: %w", provider, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Key(ctx, ProviderGemini)
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key, source string) error {
	return s.Rotate(ctx, ProviderGemini, key, map[string]string{"source": source})
}

// ResolveGeminiAPIKey prefers the configured key and falls back to the stored
// one.
func (s *Store) ResolveGeminiAPIKey(ctx context.Context, configured string) (string, error) {
	if key := strings.TrimSpace(configured); key != "" {
		return key, nil
	}
	return s.GeminiAPIKey(ctx)
}

// fingerprint keeps the last four characters so operators can tell keys
// apart in the table without exposing them.
func fingerprint(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
