package fileserver

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// stagingDirName is the directory under the root in which uploads are written
// before they are verified. It is not a regular file, so it never shows up in
// listings.
const stagingDirName = ".staging"

var validName = regexp.MustCompile(`^[A-Za-z0-9.\-_ ]+$`)

// ValidName reports whether name may be used as a file name in storage.
func ValidName(name string) bool {
	return validName.MatchString(name) && !strings.Contains(name, "..")
}

// Storage is a flat directory of files. The directory is created on first use.
type Storage struct {
	root string
}

func NewStorage(root string) *Storage {
	return &Storage{root: filepath.Clean(root)}
}

// Root returns the storage directory.
func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) ensureRoot() error {
	return os.MkdirAll(s.root, 0o755)
}

// List returns the names of all files in storage, in directory order.
func (s *Storage) List() ([]string, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Open returns the path of an existing file for reading.
func (s *Storage) Open(name string) (string, error) {
	if !ValidName(name) {
		return "", errInvalidName(name)
	}
	if err := s.ensureRoot(); err != nil {
		return "", err
	}
	path := filepath.Join(s.root, name)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return "", errNotExist(name)
	} else if err != nil {
		return "", err
	}
	return path, nil
}

// Create returns the destination path and the staging directory for storing
// a file under name.
func (s *Storage) Create(name string) (dest, staging string, err error) {
	if !ValidName(name) {
		return "", "", errInvalidName(name)
	}
	if err := s.ensureRoot(); err != nil {
		return "", "", err
	}
	return filepath.Join(s.root, name), filepath.Join(s.root, stagingDirName), nil
}
