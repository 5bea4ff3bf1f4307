package store

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"alertd/internal/alert"
	logx "alertd/pkg/logx"
)

// DefaultDir matches the layout of earlier firmware: ./Alerts/<id>.
const DefaultDir = "./Alerts"

// DirStore keeps one file per alert id in a directory. Writes go to a hidden
// temp file first and are renamed into place.
type DirStore struct {
	fs  afero.Fs
	dir string
	log logx.Logger

	mu     sync.Mutex
	closed bool
}

// OpenDir opens (and creates if needed) dir on fsys. A nil fsys means the OS
// filesystem.
func OpenDir(fsys afero.Fs, dir string, log logx.Logger) (*DirStore, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultDir
	}
	dir = path.Clean(dir)

	ok, err := afero.DirExists(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !ok {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &DirStore{fs: fsys, dir: dir, log: log}, nil
}

func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) Save(ctx context.Context, rec alert.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := s.entryPath(rec.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", alert.ErrPersistence)
	}

	tmp := path.Join(s.dir, "."+rec.ID+".tmp")
	if err := afero.WriteFile(s.fs, tmp, []byte(EncodeLine(rec)+"\n"), 0o600); err != nil {
		return fmt.Errorf("%w: write %s: %w", alert.ErrPersistence, rec.ID, err)
	}
	if err := s.fs.Rename(tmp, name); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("%w: rename %s: %w", alert.ErrPersistence, rec.ID, err)
	}
	return nil
}

func (s *DirStore) Erase(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := s.entryPath(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: store closed", alert.ErrPersistence)
	}

	if err := s.fs.Remove(name); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("%w: no entry for %s", alert.ErrUnknownID, id)
		}
		return fmt.Errorf("%w: remove %s: %w", alert.ErrPersistence, id, err)
	}
	return nil
}

func (s *DirStore) ScanAll(ctx context.Context) (ScanResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return ScanResult{}, fmt.Errorf("read %s: %w", s.dir, err)
	}

	var res ScanResult
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id := fi.Name()
		if fi.IsDir() || strings.HasPrefix(id, ".") {
			continue
		}
		b, err := afero.ReadFile(s.fs, path.Join(s.dir, id))
		if err != nil {
			s.log.Warn("unreadable alert entry", logx.String("id", id), logx.Err(err))
			res.Malformed = append(res.Malformed, id)
			continue
		}
		p, err := DecodeLine(id, string(b))
		if err != nil {
			s.log.Warn("malformed alert entry skipped", logx.String("id", id), logx.Err(err))
			res.Malformed = append(res.Malformed, id)
			continue
		}
		res.Records = append(res.Records, p)
	}
	sort.Slice(res.Records, func(i, j int) bool { return res.Records[i].ID < res.Records[j].ID })
	return res, nil
}

func (s *DirStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *DirStore) entryPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: invalid id %q", alert.ErrPersistence, id)
	}
	return path.Join(s.dir, id), nil
}
