package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	apperrors "github.com/daqol/information-retrieval/pkg/errors"
)

// LocalDocument is a file on disk, identified by its path.
type LocalDocument struct {
	path string
	terms
}

func NewLocal(path string) *LocalDocument {
	return &LocalDocument{path: path}
}

func (d *LocalDocument) Location() string { return d.path }

func (d *LocalDocument) Fetch(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", apperrors.ErrIO, d.path, err)
	}
	return f, nil
}

// Read decodes the file as UTF-8; invalid sequences become U+FFFD.
func (d *LocalDocument) Read(ctx context.Context) (string, bool, error) {
	rc, err := d.Fetch(ctx)
	if err != nil {
		return "", false, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", false, fmt.Errorf("%w: reading %s: %w", apperrors.ErrIO, d.path, err)
	}
	return strings.ToValidUTF8(string(data), "\uFFFD"), true, nil
}

func (d *LocalDocument) Tokenize(ctx context.Context) (map[string]int, error) {
	return d.tokenize(ctx, d.Read)
}

func (d *LocalDocument) sealed() {}
