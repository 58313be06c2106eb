// Package cas provides content-addressed storage for the source texts of
// indexed documents. Blobs are keyed by their BLAKE3-256 hash and kept
// xz-compressed on disk.
package cas

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/FocuswithJustin/versecite/core/errors"
	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
)

// Function variables so tests can inject failures.
var (
	osRename    = os.Rename
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// hashPattern matches a lowercase BLAKE3-256 hex string.
var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Hash computes the BLAKE3-256 hash of data as lowercase hex.
func Hash(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Store is a directory of xz-compressed blobs.
type Store struct {
	root string
}

// NewStore creates a store rooted at root, creating the directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, "blobs"), 0o755); err != nil {
		return nil, errors.NewIO("create", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Put stores data and returns its hash. Storing existing content is a no-op.
func (s *Store) Put(data []byte) (string, error) {
	hash := Hash(data)
	blobPath := s.pathForHash(hash)
	if _, err := os.Stat(blobPath); err == nil {
		return hash, nil
	}

	dir := filepath.Dir(blobPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewIO("create", dir, err)
	}

	var buf bytes.Buffer
	xw, err := xzNewWriter(&buf)
	if err != nil {
		return "", fmt.Errorf("creating xz writer: %w", err)
	}
	if _, err := xw.Write(data); err != nil {
		return "", fmt.Errorf("compressing blob: %w", err)
	}
	if err := xw.Close(); err != nil {
		return "", fmt.Errorf("compressing blob: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial blob.
	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return "", errors.NewIO("create", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", errors.NewIO("close", tmpPath, err)
	}
	if err := osRename(tmpPath, blobPath); err != nil {
		os.Remove(tmpPath)
		return "", errors.NewIO("rename", blobPath, err)
	}
	return hash, nil
}

// Get returns the blob stored under hash.
func (s *Store) Get(hash string) ([]byte, error) {
	if err := validateHash(hash); err != nil {
		return nil, err
	}
	blobPath := s.pathForHash(hash)
	f, err := os.Open(blobPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("blob", hash)
		}
		return nil, errors.NewIO("open", blobPath, err)
	}
	defer f.Close()

	xr, err := xzNewReader(f)
	if err != nil {
		return nil, &errors.ParseError{Format: "xz blob", Input: hash, Message: err.Error(), Err: err}
	}
	data, err := io.ReadAll(xr)
	if err != nil {
		return nil, errors.NewIO("read", blobPath, err)
	}
	if got := Hash(data); got != hash {
		return nil, &errors.ParseError{Format: "blob", Input: hash, Message: "content hash mismatch " + got}
	}
	return data, nil
}

// Exists reports whether a blob with the given hash is stored.
func (s *Store) Exists(hash string) bool {
	if validateHash(hash) != nil {
		return false
	}
	_, err := os.Stat(s.pathForHash(hash))
	return err == nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(hash string) error {
	if err := validateHash(hash); err != nil {
		return err
	}
	blobPath := s.pathForHash(hash)
	if err := os.Remove(blobPath); err != nil && !os.IsNotExist(err) {
		return errors.NewIO("remove", blobPath, err)
	}
	return nil
}

// pathForHash returns <root>/blobs/<first2>/<hash>.xz.
func (s *Store) pathForHash(hash string) string {
	return filepath.Join(s.root, "blobs", hash[:2], hash+".xz")
}

func validateHash(hash string) error {
	if !hashPattern.MatchString(hash) {
		v := errors.NewValidation("hash", "not a BLAKE3-256 hex string")
		v.Value = hash
		return v
	}
	return nil
}
