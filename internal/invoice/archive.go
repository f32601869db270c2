package invoice

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidArchive is returned when the payload is not a readable ZIP archive
var ErrInvalidArchive = errors.New("invalid zip archive")

// macOSMetadataPrefix marks resource-fork entries added by the macOS archiver
const macOSMetadataPrefix = "__MACOSX/"

// Unpacker extracts invoice PDFs from ZIP archives
type Unpacker struct {
	logger *zap.Logger
}

// NewUnpacker creates a new Unpacker
func NewUnpacker(logger *zap.Logger) *Unpacker {
	return &Unpacker{logger: logger}
}

// IsInvoiceEntry reports whether an archive entry name refers to an invoice PDF
func IsInvoiceEntry(name string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, macOSMetadataPrefix) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), ".pdf")
}

// Unpack extracts the PDF entries of an in-memory archive into destination
// and returns their paths in archive order. An archive without PDFs yields an
// empty slice and no error.
func (u *Unpacker) Unpack(data []byte, destination string) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	// insecure names are rejected per entry by entryTarget
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return u.extractAll(zr.File, destination)
}

// UnpackFile is Unpack for an archive stored on disk
func (u *Unpacker) UnpackFile(archivePath, destination string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	defer zr.Close()

	return u.extractAll(zr.File, destination)
}

func (u *Unpacker) extractAll(files []*zip.File, destination string) ([]string, error) {
	if err := os.MkdirAll(destination, 0755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}

	paths := []string{}
	skipped := 0
	for _, f := range files {
		if f.FileInfo().IsDir() || !IsInvoiceEntry(f.Name) {
			skipped++
			continue
		}

		target, err := entryTarget(destination, f.Name)
		if err != nil {
			return nil, err
		}
		if err := extractEntry(f, target); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		paths = append(paths, target)
	}

	u.logger.Info("Unpacked invoice archive",
		zap.Int("pdf_entries", len(paths)),
		zap.Int("skipped_entries", skipped))

	return paths, nil
}

// entryTarget resolves an entry name under destination, refusing names that escape it
func entryTarget(destination, name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	target := filepath.Join(destination, filepath.FromSlash(name))

	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("failed to resolve entry path: %w", err)
	}
	absBase, err := filepath.Abs(destination)
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination: %w", err)
	}
	if !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: entry escapes destination: %s", ErrInvalidArchive, name)
	}
	return target, nil
}

func extractEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
