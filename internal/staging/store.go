// Package staging keeps uploaded pages on disk between messages.
//
// Layout: <root>/<stagingId>/<pageId>.txt, one file per page holding the
// payload exactly as the client sent it. A root belongs to one process at
// a time, held through an advisory lock on <root>/.lock.
package staging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/fault"
	"github.com/life-stream-dev/life-stream-go-pdf-collector/internal/logger"
)

const (
	pageExt  = ".txt"
	tmpExt   = ".tmp"
	lockName = ".lock"
)

var (
	ErrEmptyRoot = errors.New("staging root is empty")
	ErrRootInUse = errors.New("staging root is locked by another process")
)

type Store struct {
	root string
	lock *os.File

	closeOnce sync.Once
	closeErr  error
}

// NewStore creates root if needed and takes the root lock. Sweep wipes
// every session directory under root, so two live stores must never
// share one.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, ErrEmptyRoot
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve staging root %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create staging root %s: %w", abs, err)
	}

	lock, err := os.OpenFile(filepath.Join(abs, lockName), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("open staging lock in %s: %w", abs, err)
	}
	if err := lockRoot(lock); err != nil {
		_ = lock.Close()
		return nil, fmt.Errorf("lock staging root %s: %w", abs, err)
	}
	return &Store{root: abs, lock: lock}, nil
}

// Close releases the root lock. Staged pages are left in place.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(unlockRoot(s.lock), s.lock.Close())
	})
	return s.closeErr
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) Dir(stagingID uuid.UUID) string {
	return filepath.Join(s.root, stagingID.String())
}

func (s *Store) pagePath(stagingID, pageID uuid.UUID) string {
	return filepath.Join(s.Dir(stagingID), pageID.String()+pageExt)
}

func (s *Store) Exists(stagingID uuid.UUID) bool {
	fi, err := os.Stat(s.Dir(stagingID))
	return err == nil && fi.IsDir()
}

// EnsureDirectory is idempotent.
func (s *Store) EnsureDirectory(stagingID uuid.UUID) (string, error) {
	path := s.Dir(stagingID)
	if s.Exists(stagingID) {
		return path, nil
	}
	logger.InfoF("Directory not exists, create with path = %s", path)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("create staging directory %s: %w", path, err)
	}
	return path, nil
}

// WritePage stores payload under pageID, replacing any previous content.
// The file appears atomically.
func (s *Store) WritePage(stagingID, pageID uuid.UUID, payload []byte) error {
	dir, err := s.EnsureDirectory(stagingID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pageID.String()+"-*"+tmpExt)
	if err != nil {
		return fmt.Errorf("create temp page in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(payload)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, s.pagePath(stagingID, pageID))
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("write page %s: %w", pageID, err)
	}

	logger.DebugF("Create temp file with tempDirPath = %s and fileName = %s", dir, pageID)
	return nil
}

func (s *Store) ReadPage(stagingID, pageID uuid.UUID) ([]byte, error) {
	data, err := os.ReadFile(s.pagePath(stagingID, pageID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !s.Exists(stagingID) {
			return nil, fault.Wrap(fault.KindStagingNotFound, "read page", err)
		}
		return nil, fmt.Errorf("read page %s: %w", pageID, err)
	}
	return data, nil
}

// DeletePage is best-effort: failures are logged, never returned.
func (s *Store) DeletePage(stagingID, pageID uuid.UUID) {
	path := s.pagePath(stagingID, pageID)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnF("File with path = %s do not deleted: %v", path, err)
	}
}

// Pages lists the page ids currently stored for stagingID.
func (s *Store) Pages(stagingID uuid.UUID) ([]uuid.UUID, error) {
	entries, err := os.ReadDir(s.Dir(stagingID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list staging directory: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), pageExt)
		if !ok || entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PurgeAll removes every artifact and then the directory. Leftovers are
// logged and otherwise ignored.
func (s *Store) PurgeAll(stagingID uuid.UUID) {
	path := s.Dir(stagingID)
	entries, err := os.ReadDir(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnF("Unable to list staging directory %s: %v", path, err)
		}
		return
	}

	logger.DebugF("Delete %d temp files in %s", len(entries), path)
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if err := os.RemoveAll(child); err != nil {
			logger.WarnF("File with path = %s do not deleted: %v", child, err)
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
			logger.WarnF("Directory %s not empty!", path)
			return
		}
		logger.WarnF("Unable to delete staging directory %s: %v", path, err)
		return
	}
	logger.DebugF("Staging directory %s deleted", path)
}

// Sweep removes staging directories left behind by a previous process.
// It must run before any session is created.
func (s *Store) Sweep() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("list staging root: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := uuid.Parse(entry.Name())
		if err != nil {
			continue
		}
		s.PurgeAll(id)
		if !s.Exists(id) {
			removed++
		}
	}
	return removed, nil
}
