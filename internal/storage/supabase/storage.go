// Package supabase stores media objects in Supabase Storage.
package supabase

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/go-faster/errors"
	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"github.com/GaspardBoreal/la-frequence-du-vivant-sub009/internal/domain/media"
)

const cacheControl = "31536000"

// Storage implements media.Storage on Supabase Storage.
type Storage struct {
	// The storage client sets upload options as shared headers.
	mu     sync.Mutex
	client *storage_go.Client
}

var _ media.Storage = (*Storage)(nil)

// New connects to the Supabase project at url with a service key.
func New(url, serviceKey string) (*Storage, error) {
	client, err := supabase.NewClient(strings.TrimRight(url, "/"), serviceKey, nil)
	if err != nil {
		return nil, errors.Wrap(err, "supabase client")
	}
	return &Storage{client: client.Storage}, nil
}

// Put uploads data, overwriting any object at objectPath.
func (s *Storage) Put(ctx context.Context, bucket, objectPath, contentType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	upsert := true
	cc := cacheControl
	opts := storage_go.FileOptions{Upsert: &upsert, CacheControl: &cc}
	if contentType != "" {
		opts.ContentType = &contentType
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.client.UploadFile(bucket, objectPath, bytes.NewReader(data), opts); err != nil {
		return errors.Wrap(err, "supabase upload")
	}
	return nil
}

// PublicURL returns the public URL of an object in a public bucket.
func (s *Storage) PublicURL(bucket, objectPath string) string {
	return s.client.GetPublicUrl(bucket, objectPath).SignedURL
}
