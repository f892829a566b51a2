package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri        string
		scheme     string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{uri: "gs://qa-bucket/output/", scheme: schemeGCS, wantBucket: "qa-bucket", wantPrefix: "output"},
		{uri: "gs://qa-bucket", scheme: schemeGCS, wantBucket: "qa-bucket"},
		{uri: "s3://qa/a/b", scheme: schemeS3, wantBucket: "qa", wantPrefix: "a/b"},
		{uri: "s3:///nobucket", scheme: schemeS3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			b, p, err := splitURI(tt.uri, tt.scheme)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, b)
			assert.Equal(t, tt.wantPrefix, p)
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "out/2025-06-01/x.csv", objectKey("out", "2025-06-01/x.csv"))
	assert.Equal(t, "x.csv", objectKey("", "x.csv"))
	assert.Equal(t, "out/x.csv", objectKey("out", "../x.csv"))
}

func TestLocal_WriteAndRead(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	err = store.Write(ctx, []File{
		{Name: "2025-06-01/payer-v2/final_comparison.csv", Data: []byte("id\n1\n")},
		{Name: "2025-06-01/payer-v2/summary_counts.csv", Data: []byte("field\nname\n")},
	})
	require.NoError(t, err)

	data, err := store.Read(ctx, "2025-06-01/payer-v2/final_comparison.csv")
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	assert.Equal(t, filepath.Join(root, "2025-06-01", "payer-v2", "summary_counts.csv"),
		store.Location("2025-06-01/payer-v2/summary_counts.csv"))

	entries, err := os.ReadDir(filepath.Join(root, "2025-06-01", "payer-v2"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files are left behind")
}

func TestLocal_FailedBatchWritesNothing(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)
	defer store.Close()

	// A regular file where a directory is needed makes the second file fail.
	require.NoError(t, os.WriteFile(filepath.Join(root, "blocked"), []byte("x"), 0o644))

	err = store.Write(context.Background(), []File{
		{Name: "ok/first.csv", Data: []byte("a\n")},
		{Name: "blocked/second.csv", Data: []byte("b\n")},
	})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "ok", "first.csv"))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(filepath.Join(root, "ok"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocal_FailedMoveRestoresPreviousFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, []File{{Name: "a.csv", Data: []byte("old\n")}}))

	// A non-empty directory at the last target lets staging succeed but
	// makes its rename fail after the earlier files are in place.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b.csv"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.csv", "keep"), []byte("x"), 0o644))

	err = store.Write(ctx, []File{
		{Name: "a.csv", Data: []byte("new\n")},
		{Name: "c.csv", Data: []byte("c\n")},
		{Name: "b.csv", Data: []byte("b\n")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moving")

	data, err := store.Read(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, "old\n", string(data), "replaced file is restored")

	_, statErr := os.Stat(filepath.Join(root, "c.csv"))
	assert.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{LockFileName, "a.csv", "b.csv"}, names, "no temp or backup files are left behind")

	require.NoError(t, store.Write(ctx, []File{{Name: "a.csv", Data: []byte("new\n")}}))
	data, err = store.Read(ctx, "a.csv")
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))

	entries, err = os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "backup of the overwritten file is removed")
}

func TestLocal_RejectsConcurrentRun(t *testing.T) {
	root := t.TempDir()
	first, err := NewLocal(root)
	require.NoError(t, err)

	_, err = NewLocal(root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLocked))

	require.NoError(t, first.Close())

	second, err := NewLocal(root)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpen_LocalAndFetch(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	store, err := Open(ctx, root, Options{})
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, []File{{Name: "in.csv", Data: []byte("subject_id\ns1\n")}}))
	require.NoError(t, store.Close())

	data, err := Fetch(ctx, filepath.Join(root, "in.csv"), Options{})
	require.NoError(t, err)
	assert.Equal(t, "subject_id\ns1\n", string(data))

	_, err = Fetch(ctx, filepath.Join(root, "missing.csv"), Options{})
	assert.Error(t, err)
}

type memBucket struct {
	objects map[string][]byte
	failOn  string
	removed []string
}

func (b *memBucket) put(ctx context.Context, key string, data []byte) error {
	if key == b.failOn {
		return errors.New("quota exceeded")
	}
	b.objects[key] = data
	return nil
}

func (b *memBucket) get(ctx context.Context, key string) ([]byte, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

func (b *memBucket) remove(ctx context.Context, key string) error {
	delete(b.objects, key)
	b.removed = append(b.removed, key)
	return nil
}

func (b *memBucket) uri(key string) string { return "mem://" + key }

func (b *memBucket) close() error { return nil }

func TestObjectStore_WriteAndRead(t *testing.T) {
	b := &memBucket{objects: map[string][]byte{}}
	store := &objectStore{b: b, prefix: "qa"}
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []File{{Name: "d/a.csv", Data: []byte("a")}}))
	data, err := store.Read(ctx, "d/a.csv")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
	assert.Equal(t, "mem://qa/d/a.csv", store.Location("d/a.csv"))
}

func TestObjectStore_RollsBackPartialBatch(t *testing.T) {
	b := &memBucket{objects: map[string][]byte{}, failOn: "qa/d/c.csv"}
	store := &objectStore{b: b, prefix: "qa"}

	err := store.Write(context.Background(), []File{
		{Name: "d/a.csv", Data: []byte("a")},
		{Name: "d/b.csv", Data: []byte("b")},
		{Name: "d/c.csv", Data: []byte("c")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Empty(t, b.objects)
	assert.Equal(t, []string{"qa/d/a.csv", "qa/d/b.csv"}, b.removed)
}
