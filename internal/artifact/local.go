package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/xCures/llm-qa-extraction-pipeline/internal/logger"
)

// LockFileName is created in a local root while a store holds it.
const LockFileName = ".qa.lock"

// ErrLocked is returned when another run holds the output root.
var ErrLocked = errors.New("output root is locked by another run")

// Local writes files under a directory. It holds an exclusive file lock on
// the root until Close.
type Local struct {
	root string
	lock *flock.Flock
}

// NewLocal creates root if needed and locks it.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("NewLocal: creating root %q: %w", root, err)
	}

	lock := flock.New(filepath.Join(root, LockFileName))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("NewLocal: acquiring lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("NewLocal: %s: %w", root, ErrLocked)
	}
	return &Local{root: root, lock: lock}, nil
}

// Close releases the root lock.
func (s *Local) Close() error {
	return s.lock.Unlock()
}

// Location returns the file path of name.
func (s *Local) Location(name string) string {
	return filepath.Join(s.root, filepath.FromSlash(name))
}

// Read returns the contents of name.
func (s *Local) Read(ctx context.Context, name string) ([]byte, error) {
	return readLocalFile(s.Location(name))
}

// Write stages every file as a temp file next to its target and renames
// them into place only once all are staged. If a rename fails, files
// already moved are taken back out and any file they replaced is restored.
func (s *Local) Write(ctx context.Context, files []File) error {
	log := logger.FromContext(ctx)

	var pending []staged
	for _, f := range files {
		dst := s.Location(f.Name)
		tmp, err := stage(dst, f.Data)
		if err != nil {
			removeTemps(pending)
			return fmt.Errorf("Write: staging %s: %w", f.Name, err)
		}
		pending = append(pending, staged{tmp: tmp, dst: dst})
	}

	for i := range pending {
		if err := pending[i].move(); err != nil {
			for j := i - 1; j >= 0; j-- {
				pending[j].undo()
			}
			removeTemps(pending[i:])
			return fmt.Errorf("Write: moving %s into place: %w", pending[i].dst, err)
		}
	}

	for _, st := range pending {
		if st.backup != "" {
			_ = os.Remove(st.backup)
		}
		log.Debug().Str("path", st.dst).Msg("Wrote artifact")
	}
	return nil
}

// staged is a temp file waiting to replace dst. backup holds the previous
// dst while the batch is in flight.
type staged struct{ tmp, dst, backup string }

func (st *staged) move() error {
	if info, err := os.Lstat(st.dst); err == nil && info.Mode().IsRegular() {
		backup := st.tmp + ".bak"
		if err := os.Rename(st.dst, backup); err != nil {
			return err
		}
		st.backup = backup
	}
	if err := os.Rename(st.tmp, st.dst); err != nil {
		if st.backup != "" {
			_ = os.Rename(st.backup, st.dst)
			st.backup = ""
		}
		return err
	}
	return nil
}

// undo removes the moved file and puts the previous one back.
func (st *staged) undo() {
	if st.backup == "" {
		_ = os.Remove(st.dst)
		return
	}
	_ = os.Rename(st.backup, st.dst)
	st.backup = ""
}

func removeTemps(files []staged) {
	for _, st := range files {
		_ = os.Remove(st.tmp)
	}
}

func stage(dst string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func readLocalFile(p string) ([]byte, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return data, nil
}
