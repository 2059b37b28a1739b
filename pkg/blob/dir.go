package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xhad/ragcore/internal/models"
)

// DirSource reads document binaries from <root>/<organization>/<document>.
type DirSource struct {
	root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

func (d *DirSource) Fetch(ctx context.Context, documentID, orgID string) ([]byte, error) {
	if !filepath.IsLocal(orgID) || !filepath.IsLocal(documentID) {
		return nil, fmt.Errorf("invalid document path %s/%s", orgID, documentID)
	}

	data, err := os.ReadFile(filepath.Join(d.root, orgID, documentID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("document %s: %w", documentID, models.ErrNotFound)
	}
	return data, err
}
