package refstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"bibkeep/internal/faults"
	"bibkeep/internal/fileutil"
)

const (
	backupPrefix = "references-"
	backupSuffix = ".json.zst"
	backupLayout = "20060102T150405.000000000Z"
)

var now = time.Now

// Backups manages zstd-compressed snapshots of the store file.
type Backups struct {
	Dir  string
	Keep int
}

// Snapshot describes one backup file.
type Snapshot struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// Create compresses the current store file into Dir and prunes old
// snapshots beyond Keep. A missing store produces no snapshot and no error.
func (b Backups) Create(storePath string) (Snapshot, bool, error) {
	data, err := os.ReadFile(storePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, faults.Wrap(faults.ErrIO, "backup", "read store", storePath, err)
	}

	created := now().UTC()
	name := backupPrefix + created.Format(backupLayout) + backupSuffix
	path := filepath.Join(b.Dir, name)
	err = fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := enc.Write(data); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return Snapshot{}, false, faults.Wrap(faults.ErrIO, "backup", "write snapshot", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return Snapshot{}, false, faults.Wrap(faults.ErrIO, "backup", "stat snapshot", path, err)
	}
	if err := b.prune(); err != nil {
		return Snapshot{}, false, err
	}
	return Snapshot{Name: name, Path: path, Size: info.Size(), Created: created}, true, nil
}

// List returns snapshots newest first.
func (b Backups) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, faults.Wrap(faults.ErrIO, "backup", "list", b.Dir, err)
	}
	var snapshots []Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		created, err := time.Parse(backupLayout, strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix))
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Name:    name,
			Path:    filepath.Join(b.Dir, name),
			Size:    info.Size(),
			Created: created,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Created.After(snapshots[j].Created)
	})
	return snapshots, nil
}

// Read decompresses the snapshot called name and validates that it parses
// as a record store.
func (b Backups) Read(name string) ([]byte, error) {
	if name != filepath.Base(name) {
		return nil, faults.Wrap(faults.ErrValidation, "backup", "read", "snapshot name must not contain a path", nil)
	}
	path := filepath.Join(b.Dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, faults.Wrap(faults.ErrNotFound, "backup", "read", path, err)
		}
		return nil, faults.Wrap(faults.ErrIO, "backup", "read", path, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "backup", "decompress", path, err)
	}
	defer dec.Close()
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "backup", "decompress", path, err)
	}
	if _, err := Decode(bytes.NewReader(data)); err != nil {
		return nil, faults.Wrap(faults.ErrValidation, "backup", "parse", path, err)
	}
	return data, nil
}

// Restore replaces storePath with the snapshot called name. The current
// store is snapshotted first so a restore can itself be undone.
func (b Backups) Restore(name, storePath string) (Snapshot, error) {
	data, err := b.Read(name)
	if err != nil {
		return Snapshot{}, err
	}
	previous, _, err := b.Create(storePath)
	if err != nil {
		return Snapshot{}, err
	}
	if err := fileutil.WriteFileAtomic(storePath, data, 0o644); err != nil {
		return Snapshot{}, faults.Wrap(faults.ErrIO, "backup", "restore", storePath, err)
	}
	return previous, nil
}

func (b Backups) prune() error {
	if b.Keep <= 0 {
		return nil
	}
	snapshots, err := b.List()
	if err != nil {
		return err
	}
	for _, snapshot := range snapshots[min(b.Keep, len(snapshots)):] {
		if err := os.Remove(snapshot.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return faults.Wrap(faults.ErrIO, "backup", "prune", fmt.Sprintf("remove %s", snapshot.Path), err)
		}
	}
	return nil
}
