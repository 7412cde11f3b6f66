package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	supastorage "github.com/supabase-community/storage-go"
)

// SupabaseStore keeps objects in a public Supabase storage bucket.
type SupabaseStore struct {
	client  *supastorage.Client
	bucket  string
	baseURL string
}

// NewSupabaseStore builds a store for bucket using the service role key.
func NewSupabaseStore(supabaseURL, serviceKey, bucket string) (*SupabaseStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(supabaseURL), "/")
	if baseURL == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, errors.New("storage: supabase url and service key are required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("storage: supabase bucket is required")
	}
	client := supastorage.NewClient(baseURL+"/storage/v1", serviceKey, nil)
	return &SupabaseStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

func (s *SupabaseStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upsert := true
	if _, err := s.client.UploadFile(s.bucket, cleanKey, bytes.NewReader(data), supastorage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	}); err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", cleanKey, err)
	}
	return s.URL(cleanKey), nil
}

func (s *SupabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return nil, err
	}
	data, err := s.client.DownloadFile(s.bucket, cleanKey)
	if err != nil {
		return nil, fmt.Errorf("storage: download %s: %w", cleanKey, err)
	}
	return data, nil
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(s.bucket, []string{cleanKey}); err != nil {
		return fmt.Errorf("storage: remove %s: %w", cleanKey, err)
	}
	return nil
}

// URL returns the public object URL.
func (s *SupabaseStore) URL(key string) string {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, cleanKey)
}

var _ ObjectStore = (*SupabaseStore)(nil)
