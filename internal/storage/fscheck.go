package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// remoteFilesystems are the filesystem types SQLite locking cannot be
// trusted on.
var remoteFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// ErrRemoteFilesystem is returned when the journal would live on a network
// mount.
var ErrRemoteFilesystem = errors.New("journal database is on a network filesystem")

// CheckLocal fails when path, or the nearest directory of it that exists,
// sits on a network filesystem.
func CheckLocal(path string) error {
	return checkLocal(path, filesystemType)
}

func checkLocal(path string, fstype func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("journal path is empty")
	}

	existing, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve journal path %q: %w", path, err)
	}

	kind, err := fstype(existing)
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isRemote(kind) {
		return fmt.Errorf("%w: %q is on %q; set journal.path to a local disk", ErrRemoteFilesystem, path, kind)
	}
	return nil
}

// existingAncestor walks up from path until it finds something that exists.
func existingAncestor(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for p := abs; ; {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", p, err)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		p = parent
	}
}

func isRemote(kind string) bool {
	_, ok := remoteFilesystems[strings.ToLower(strings.TrimSpace(kind))]
	return ok
}
