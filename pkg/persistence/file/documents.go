package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/geoimporter/pkg/persistence"
)

// documents stores one JSON file per record under root/kind. Callers hold mu around
// read-modify-write sequences.
type documents[T any] struct {
	dir string
	mu  *sync.Mutex
}

func newDocuments[T any](root, kind string, mu *sync.Mutex) *documents[T] {
	return &documents[T]{dir: filepath.Join(root, kind), mu: mu}
}

// validateID rejects identifiers that would escape the kind directory.
func validateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: identifier cannot be empty", persistence.ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return fmt.Errorf("%w: identifier contains invalid characters", persistence.ErrInvalidID)
	}

	return nil
}

func (d *documents[T]) path(id string) string {
	return filepath.Join(d.dir, id+".json")
}

// read returns nil, nil when the document does not exist.
func (d *documents[T]) read(id string) (*T, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path(id)) // #nosec G304 -- id is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", id, err)
	}

	var doc T

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", id, err)
	}

	return &doc, nil
}

func (d *documents[T]) write(id string, doc *T) error {
	if err := validateID(id); err != nil {
		return err
	}

	err := os.MkdirAll(d.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", d.dir, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	err = os.WriteFile(d.path(id), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", id, err)
	}

	return nil
}

func (d *documents[T]) remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	err := os.Remove(d.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}

	return nil
}

// list returns every document sorted by file name, skipping unreadable files.
func (d *documents[T]) list() ([]*T, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*T{}, nil
		}

		return nil, fmt.Errorf("failed to read directory %s: %w", d.dir, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	docs := make([]*T, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		doc, err := d.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil || doc == nil {
			continue
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

// filter returns the documents matching keep.
func (d *documents[T]) filter(keep func(*T) bool) ([]*T, error) {
	all, err := d.list()
	if err != nil {
		return nil, err
	}

	matched := make([]*T, 0, len(all))

	for _, doc := range all {
		if keep(doc) {
			matched = append(matched, doc)
		}
	}

	return matched, nil
}
