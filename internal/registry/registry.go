// Package registry is the CRUD layer for named minus-word lists. Filter ids
// are slugs derived from the name, so a rename changes the id; migrating
// binding configurations that reference the old id is the caller's job.
package registry

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/promodesk/slovolov/internal/database"
)

// Registry manages filter rows in the local store.
type Registry struct {
	db *database.DB
}

// New creates a Registry over the given store.
func New(db *database.DB) *Registry {
	return &Registry{db: db}
}

// Slugify derives a stable id from a display name: lowercase, letter and
// digit runs kept, everything else collapsed to single dashes.
func Slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

// NormalizeItem lowercases and trims a minus-word token. Empty after
// normalization means the token should be dropped.
func NormalizeItem(item string) string {
	return strings.ToLower(strings.TrimSpace(item))
}

// Create adds a filter with the given name and no items.
func (r *Registry) Create(name string) (*database.Filter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Msg: "filter name required"}
	}
	id := Slugify(name)
	if id == "" {
		return nil, &ValidationError{Msg: fmt.Sprintf("filter name %q produces an empty id", name)}
	}

	if err := r.checkCollision(id, name, ""); err != nil {
		return nil, err
	}
	if err := r.db.InsertFilter(id, name); err != nil {
		return nil, fmt.Errorf("creating filter: %w", err)
	}
	return r.db.GetFilter(id)
}

// Get returns a filter by id.
func (r *Registry) Get(id string) (*database.Filter, error) {
	f, err := r.db.GetFilter(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &NotFoundError{ID: id}
	}
	return f, nil
}

// List returns all filters.
func (r *Registry) List() ([]database.Filter, error) {
	return r.db.ListFilters()
}

// Rename changes a filter's name. Because the id is derived from the name,
// the returned filter usually carries a new id; callers must migrate every
// binding configuration referencing the old one.
func (r *Registry) Rename(id, newName string) (*database.Filter, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, &ValidationError{Msg: "filter name required"}
	}

	f, err := r.db.GetFilter(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &NotFoundError{ID: id}
	}
	if f.Name == newName {
		return f, nil
	}

	newID := Slugify(newName)
	if newID == "" {
		return nil, &ValidationError{Msg: fmt.Sprintf("filter name %q produces an empty id", newName)}
	}
	if err := r.checkCollision(newID, newName, id); err != nil {
		return nil, err
	}

	if err := r.db.RenameFilter(id, newID, newName); err != nil {
		return nil, fmt.Errorf("renaming filter: %w", err)
	}
	return r.db.GetFilter(newID)
}

// SetItems replaces the full items array. Items are normalized; empties are
// dropped. Incremental edits are expressed as read, modify, SetItems.
func (r *Registry) SetItems(id string, items []string) (*database.Filter, error) {
	f, err := r.db.GetFilter(id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, &NotFoundError{ID: id}
	}

	normalized := make([]string, 0, len(items))
	for _, item := range items {
		if token := NormalizeItem(item); token != "" {
			normalized = append(normalized, token)
		}
	}

	if err := r.db.UpdateFilterItems(id, normalized); err != nil {
		return nil, fmt.Errorf("updating filter items: %w", err)
	}
	return r.db.GetFilter(id)
}

// Delete removes a filter. Binding configurations may still reference the
// id; downstream a dangling reference contributes zero exclusion words.
func (r *Registry) Delete(id string) error {
	deleted, err := r.db.DeleteFilter(id)
	if err != nil {
		return fmt.Errorf("deleting filter: %w", err)
	}
	if !deleted {
		return &NotFoundError{ID: id}
	}
	return nil
}

// checkCollision rejects an id or name already taken by another filter.
// exclude is the id of the filter being renamed, "" for create.
func (r *Registry) checkCollision(id, name, exclude string) error {
	if existing, err := r.db.GetFilterByName(name); err != nil {
		return err
	} else if existing != nil && existing.ID != exclude {
		return &DuplicateNameError{Name: name}
	}
	if existing, err := r.db.GetFilter(id); err != nil {
		return err
	} else if existing != nil && existing.ID != exclude {
		return &DuplicateNameError{Name: name}
	}
	return nil
}
