package artifact

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// NewGCS returns a store writing under gs://bucket/prefix. It assumes
// Application Default Credentials are configured.
func NewGCS(ctx context.Context, bucketName, prefix string) (Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: creating storage client: %w", err)
	}
	return &objectStore{b: &gcsBucket{client: client, name: bucketName}, prefix: prefix}, nil
}

type gcsBucket struct {
	client *storage.Client
	name   string
}

func (b *gcsBucket) put(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := b.client.Bucket(b.name).Object(key).NewWriter(ctx)
	w.ContentType = "text/csv"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy data to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

func (b *gcsBucket) get(ctx context.Context, key string) ([]byte, error) {
	rc, err := b.client.Bucket(b.name).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", b.uri(key), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading bytes of %s: %w", b.uri(key), err)
	}
	return data, nil
}

func (b *gcsBucket) remove(ctx context.Context, key string) error {
	return b.client.Bucket(b.name).Object(key).Delete(ctx)
}

func (b *gcsBucket) uri(key string) string {
	return schemeGCS + b.name + "/" + key
}

func (b *gcsBucket) close() error {
	return b.client.Close()
}
