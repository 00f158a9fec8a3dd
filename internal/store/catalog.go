package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/manudev97/first-frame-sub000/internal/models"
)

// ErrContentNotFound is returned when the catalog has no entry for an id.
var ErrContentNotFound = errors.New("store: content not found")

// FileCatalog serves registered content records from a JSON snapshot file,
// the same whole-collection idiom as the royalty ledger.
type FileCatalog struct {
	mu       sync.Mutex
	path     string
	contents []models.Content
}

// NewFileCatalog opens (or creates) the catalog at path.
func NewFileCatalog(path string) (*FileCatalog, error) {
	c := &FileCatalog{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		return c, nil
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.contents); err != nil {
			return nil, fmt.Errorf("decode catalog %s: %w", path, err)
		}
	}
	return c, nil
}

// Get looks a content record up by id, case-insensitively.
func (c *FileCatalog) Get(_ context.Context, contentID string) (*models.Content, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.contents {
		if strings.EqualFold(c.contents[i].ID, contentID) {
			clone := c.contents[i]
			return &clone, nil
		}
	}
	return nil, ErrContentNotFound
}

// Put registers or replaces a content record and rewrites the snapshot.
func (c *FileCatalog) Put(_ context.Context, content models.Content) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	replaced := false
	for i := range c.contents {
		if strings.EqualFold(c.contents[i].ID, content.ID) {
			c.contents[i] = content
			replaced = true
			break
		}
	}
	if !replaced {
		c.contents = append(c.contents, content)
	}
	data, err := json.MarshalIndent(c.contents, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return os.Rename(tmp, c.path)
}
