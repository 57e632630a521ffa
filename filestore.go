package cfdp

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/cfdp/pdu"
)

// ErrDirectoryTraversal indicates a file path that attempts to escape its
// base directory.
var ErrDirectoryTraversal = errors.New("cfdp: path contains directory traversal")

// File is one open file used by a transaction. Reads and writes are
// positioned so a receiver can fill segments out of order.
type File interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Size() (pdu.FileSize, error)
	Close() error
}

// Filestore abstracts the file system underneath the engine. Senders open
// source files; receivers create destination files and may remove partial
// ones on failure.
type Filestore interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	Remove(path string) error
	Rename(oldPath, newPath string) error
}

// ValidatePath checks if a file path is safe from directory traversal
// attacks. It returns the cleaned path or an error if the path contains
// traversal attempts.
func ValidatePath(path string) (string, error) {
	// Clean the path to resolve any . or .. components
	cleanedPath := filepath.Clean(path)

	// Check for path traversal indicators
	if strings.Contains(cleanedPath, "..") {
		return "", ErrDirectoryTraversal
	}

	// On Unix systems, check for absolute paths that could escape
	if filepath.IsAbs(cleanedPath) {
		parts := strings.Split(cleanedPath, string(filepath.Separator))
		for _, part := range parts {
			if part == ".." {
				return "", ErrDirectoryTraversal
			}
		}
	}

	return cleanedPath, nil
}

// OsFilestore is a Filestore backed by the operating system. Every path is
// validated against traversal and resolved relative to a base directory.
type OsFilestore struct {
	base string
}

// NewOsFilestore returns a Filestore rooted at base. Paths handed to the
// engine are interpreted relative to it.
func NewOsFilestore(base string) OsFilestore {
	return OsFilestore{base: base}
}

func (fs OsFilestore) resolve(path string) (string, error) {
	safePath, err := ValidatePath(path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "resolve",
			"path":     path,
		}).Error("Rejected unsafe file path")
		return "", err
	}
	if fs.base == "" {
		return safePath, nil
	}
	return filepath.Join(fs.base, safePath), nil
}

type osFile struct {
	f *os.File
}

func (o osFile) ReadAt(p []byte, off int64) (int, error)  { return o.f.ReadAt(p, off) }
func (o osFile) WriteAt(p []byte, off int64) (int, error) { return o.f.WriteAt(p, off) }
func (o osFile) Close() error                             { return o.f.Close() }

func (o osFile) Size() (pdu.FileSize, error) {
	info, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return pdu.FileSize(info.Size()), nil
}

// Open opens an existing file for reading.
func (fs OsFilestore) Open(path string) (File, error) {
	safePath, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(safePath)
	if err != nil {
		return nil, err
	}
	return osFile{f: f}, nil
}

// Create creates or truncates a file for writing.
func (fs OsFilestore) Create(path string) (File, error) {
	safePath, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(safePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return osFile{f: f}, nil
}

// Remove deletes a file.
func (fs OsFilestore) Remove(path string) error {
	safePath, err := fs.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(safePath)
}

// Rename moves a file.
func (fs OsFilestore) Rename(oldPath, newPath string) error {
	safeOld, err := fs.resolve(oldPath)
	if err != nil {
		return err
	}
	safeNew, err := fs.resolve(newPath)
	if err != nil {
		return err
	}
	return os.Rename(safeOld, safeNew)
}
