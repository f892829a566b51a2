package artifact

import (
	"context"
	"fmt"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
)

// bucket is the subset of an object store client the batch writer needs.
type bucket interface {
	put(ctx context.Context, key string, data []byte) error
	get(ctx context.Context, key string) ([]byte, error)
	remove(ctx context.Context, key string) error
	uri(key string) string
	close() error
}

// objectStore writes batches to a bucket, deleting the objects it already
// wrote when a later put fails.
type objectStore struct {
	b      bucket
	prefix string
}

func (s *objectStore) Location(name string) string {
	return s.b.uri(objectKey(s.prefix, name))
}

func (s *objectStore) Read(ctx context.Context, name string) ([]byte, error) {
	return s.b.get(ctx, objectKey(s.prefix, name))
}

func (s *objectStore) Close() error {
	return s.b.close()
}

func (s *objectStore) Write(ctx context.Context, files []File) error {
	log := logger.FromContext(ctx)

	written := make([]string, 0, len(files))
	for _, f := range files {
		key := objectKey(s.prefix, f.Name)
		if err := s.b.put(ctx, key, f.Data); err != nil {
			for _, k := range written {
				if rerr := s.b.remove(ctx, k); rerr != nil {
					log.Warn().Err(rerr).Str("object", s.b.uri(k)).Msg("Failed to roll back partial write")
				}
			}
			return fmt.Errorf("Write: uploading %s: %w", s.b.uri(key), err)
		}
		written = append(written, key)
		log.Debug().Str("object", s.b.uri(key)).Msg("Wrote artifact")
	}
	return nil
}
