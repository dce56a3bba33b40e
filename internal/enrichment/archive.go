package enrichment

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"neoalexandria/internal/apperr"
)

// FileArchiver writes raw fetched bytes to a content-addressed path under
// RootDir, per SPEC_FULL.md §5.11: sha256(bytes)[0:2]/sha256(bytes). Two
// resources with byte-identical content share one archived file.
// Grounded on the teacher's internal/render.SaveDigestToFile /
// SaveEmailToFile, which both os.MkdirAll the destination directory before
// writing rather than assuming it exists.
type FileArchiver struct {
	RootDir string
}

func NewFileArchiver(rootDir string) *FileArchiver {
	return &FileArchiver{RootDir: rootDir}
}

// Archive writes raw to a content-addressed path and returns the path
// relative to RootDir. Archive is a mandatory (non-degradable) stage: a
// failure to persist raw content is fatal, not a nulled field.
func (a *FileArchiver) Archive(raw []byte) (string, error) {
	sum := sha256.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	relPath := filepath.Join(hash[:2], hash)
	fullPath := filepath.Join(a.RootDir, relPath)

	if _, err := os.Stat(fullPath); err == nil {
		return relPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", apperr.Fatal("failed to create archive directory", err)
	}
	if err := os.WriteFile(fullPath, raw, 0o644); err != nil {
		return "", apperr.Fatal("failed to write archive file", err)
	}

	return relPath, nil
}

// Read returns the raw bytes archived at relPath (as returned by
// Archive), used to reconstruct extracted text for the in-memory
// indexes on process startup.
func (a *FileArchiver) Read(relPath string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(a.RootDir, relPath))
	if err != nil {
		return nil, apperr.Fatal("failed to read archived content", err)
	}
	return raw, nil
}
