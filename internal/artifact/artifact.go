// Package artifact stores the CSV files a QA run reads and writes. A run's
// outputs are written as one batch: either every file lands or none does.
package artifact

import (
	"context"
	"fmt"
	"path"
	"strings"
)

const (
	schemeGCS = "gs://"
	schemeS3  = "s3://"
)

// File is one artifact. Name is slash-separated and relative to the store
// root, e.g. "2025-06-01/payer-v2/final_comparison.csv".
type File struct {
	Name string
	Data []byte
}

// Store persists batches of files under a root.
type Store interface {
	// Write stores every file or, on error, none of them.
	Write(ctx context.Context, files []File) error
	Read(ctx context.Context, name string) ([]byte, error)
	// Location is the user-facing path or URI of name.
	Location(name string) string
	Close() error
}

// Options configures the object store clients. Local roots ignore it.
type Options struct {
	S3 S3Config
}

// S3Config holds the AWS settings for s3:// roots. Empty credentials fall
// back to the default AWS credential chain.
type S3Config struct {
	Region          string
	Endpoint        string
	PathStyle       bool
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Open returns the store for root: gs://bucket/prefix, s3://bucket/prefix,
// or a local directory.
func Open(ctx context.Context, root string, opts Options) (Store, error) {
	switch {
	case strings.HasPrefix(root, schemeGCS):
		bucket, prefix, err := splitURI(root, schemeGCS)
		if err != nil {
			return nil, err
		}
		return NewGCS(ctx, bucket, prefix)
	case strings.HasPrefix(root, schemeS3):
		bucket, prefix, err := splitURI(root, schemeS3)
		if err != nil {
			return nil, err
		}
		return NewS3(ctx, bucket, prefix, opts.S3)
	default:
		return NewLocal(root)
	}
}

// Fetch reads a single input file from a URI or local path.
func Fetch(ctx context.Context, uri string, opts Options) ([]byte, error) {
	dir, name := path.Split(uri)
	if !strings.HasPrefix(uri, schemeGCS) && !strings.HasPrefix(uri, schemeS3) {
		return readLocalFile(uri)
	}

	var (
		store Store
		err   error
	)
	switch {
	case strings.HasPrefix(uri, schemeGCS):
		bucket, prefix, serr := splitURI(strings.TrimSuffix(dir, "/"), schemeGCS)
		if serr != nil {
			return nil, serr
		}
		store, err = NewGCS(ctx, bucket, prefix)
	default:
		bucket, prefix, serr := splitURI(strings.TrimSuffix(dir, "/"), schemeS3)
		if serr != nil {
			return nil, serr
		}
		store, err = NewS3(ctx, bucket, prefix, opts.S3)
	}
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Read(ctx, name)
}

// splitURI splits "gs://bucket/some/prefix" into bucket and prefix.
func splitURI(uri, scheme string) (string, string, error) {
	trimmed := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid storage URI (no bucket): %s", uri)
	}
	prefix := ""
	if len(parts) == 2 {
		prefix = strings.Trim(parts[1], "/")
	}
	return parts[0], prefix, nil
}

// objectKey joins a prefix and a relative name into an object key.
func objectKey(prefix, name string) string {
	name = strings.TrimPrefix(path.Clean("/"+name), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
