package invoice

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type zipEntry struct {
	name    string
	content string
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIsInvoiceEntry(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"invoice.pdf", true},
		{"INVOICE.PDF", true},
		{"travel/hotel.Pdf", true},
		{"__MACOSX/._invoice.pdf", false},
		{"__MACOSX/travel/._hotel.pdf", false},
		{"notes.txt", false},
		{"invoice.pdf.zip", false},
		{"receipt.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsInvoiceEntry(tt.name))
		})
	}
}

func TestUnpacker_Unpack(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	u := NewUnpacker(logger)

	t.Run("extracts only pdf entries in archive order", func(t *testing.T) {
		dest := t.TempDir()
		data := buildZip(t,
			zipEntry{"b.pdf", "second"},
			zipEntry{"readme.txt", "ignore me"},
			zipEntry{"__MACOSX/._b.pdf", "metadata"},
			zipEntry{"trips/a.PDF", "nested"},
		)

		paths, err := u.Unpack(data, dest)

		require.NoError(t, err)
		require.Len(t, paths, 2)
		assert.Equal(t, filepath.Join(dest, "b.pdf"), paths[0])
		assert.Equal(t, filepath.Join(dest, "trips", "a.PDF"), paths[1])

		content, err := os.ReadFile(paths[1])
		require.NoError(t, err)
		assert.Equal(t, "nested", string(content))
		assert.NoFileExists(t, filepath.Join(dest, "readme.txt"))
	})

	t.Run("returns empty list when no pdf entries", func(t *testing.T) {
		data := buildZip(t, zipEntry{"notes.txt", "x"}, zipEntry{"__MACOSX/._a.pdf", "y"})

		paths, err := u.Unpack(data, t.TempDir())

		require.NoError(t, err)
		assert.NotNil(t, paths)
		assert.Empty(t, paths)
	})

	t.Run("skips directory entries", func(t *testing.T) {
		data := buildZip(t, zipEntry{"folder.pdf/", ""}, zipEntry{"folder.pdf/inner.pdf", "x"})

		paths, err := u.Unpack(data, t.TempDir())

		require.NoError(t, err)
		assert.Len(t, paths, 1)
	})

	t.Run("rejects non zip payload", func(t *testing.T) {
		_, err := u.Unpack([]byte("definitely not a zip"), t.TempDir())

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArchive)
	})

	t.Run("rejects entries escaping the destination", func(t *testing.T) {
		data := buildZip(t, zipEntry{"../../evil.pdf", "x"})

		_, err := u.Unpack(data, t.TempDir())

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArchive)
		assert.Contains(t, err.Error(), "escapes destination")
	})
}

func TestUnpacker_UnpackFile(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	u := NewUnpacker(logger)
	dir := t.TempDir()

	archivePath := filepath.Join(dir, "invoices.zip")
	require.NoError(t, os.WriteFile(archivePath, buildZip(t, zipEntry{"meal.pdf", "m"}), 0644))

	paths, err := u.UnpackFile(archivePath, filepath.Join(dir, "out"))

	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.FileExists(t, paths[0])

	_, err = u.UnpackFile(filepath.Join(dir, "missing.zip"), filepath.Join(dir, "out"))
	assert.ErrorIs(t, err, ErrInvalidArchive)
}
