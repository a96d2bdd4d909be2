package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// DefaultCacheTTL is how long an uploaded content hash maps to its URL.
const DefaultCacheTTL = 24 * time.Hour

// ErrEmpty is returned when uploading no data.
var ErrEmpty = errors.New("empty upload")

// Storage is an object store with public URLs.
type Storage interface {
	Put(ctx context.Context, bucket, objectPath, contentType string, data []byte) error
	PublicURL(bucket, objectPath string) string
}

// Uploader stores media content-addressed by SHA-256 and skips uploads of
// content it has already stored recently.
type Uploader struct {
	store  Storage
	prefix string
	cache  *cache.Cache
}

// NewUploader creates an Uploader writing under prefix.
func NewUploader(store Storage, prefix string, ttl time.Duration) *Uploader {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Uploader{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		cache:  cache.New(ttl, ttl*2),
	}
}

// ObjectPath returns the storage path of data: <prefix>/<sha256[:16]><ext>.
func ObjectPath(prefix, name, contentType string, data []byte) string {
	sum := sha256.Sum256(data)
	file := hex.EncodeToString(sum[:])[:16] + extension(name, contentType)
	if prefix == "" {
		return file
	}
	return path.Join(prefix, file)
}

func extension(name, contentType string) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" {
		return ext
	}
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mt {
	case "audio/mpeg":
		return ".mp3"
	case "image/jpeg":
		return ".jpg"
	}
	exts, err := mime.ExtensionsByType(mt)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// Upload stores data in bucket and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, bucket, name, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmpty
	}
	objectPath := ObjectPath(u.prefix, name, contentType, data)
	key := bucket + "/" + objectPath

	if v, ok := u.cache.Get(key); ok {
		zctx.From(ctx).Debug("Upload cache hit", zap.String("object", key))
		return v.(string), nil
	}

	if err := u.store.Put(ctx, bucket, objectPath, contentType, data); err != nil {
		return "", errors.Wrapf(err, "upload %s", key)
	}
	url := u.store.PublicURL(bucket, objectPath)
	u.cache.SetDefault(key, url)

	zctx.From(ctx).Info("Uploaded media",
		zap.String("object", key),
		zap.Int("bytes", len(data)),
	)
	return url, nil
}
