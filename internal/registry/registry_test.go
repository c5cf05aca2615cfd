package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/promodesk/slovolov/internal/database"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Garbage Words", "garbage-words"},
		{"  Мусорные слова  ", "мусорные-слова"},
		{"price/cheap!", "price-cheap"},
		{"--x--", "x"},
		{"!!!", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Errorf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCreate(t *testing.T) {
	r := openTestRegistry(t)
	f, err := r.Create("Garbage Words")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID != "garbage-words" || f.Name != "Garbage Words" {
		t.Errorf("unexpected filter: %+v", f)
	}
	if len(f.Items) != 0 {
		t.Errorf("expected empty items, got %v", f.Items)
	}
}

func TestCreateInvalidName(t *testing.T) {
	r := openTestRegistry(t)

	var invalid *ValidationError
	if _, err := r.Create("   "); !errors.As(err, &invalid) {
		t.Errorf("expected ValidationError for blank name, got %v", err)
	}
	// Punctuation-only names slug to an empty id.
	if _, err := r.Create("!!!"); !errors.As(err, &invalid) {
		t.Errorf("expected ValidationError for empty slug, got %v", err)
	}

	r.Create("Garbage")
	if _, err := r.Rename("garbage", "   "); !errors.As(err, &invalid) {
		t.Errorf("expected ValidationError for blank rename, got %v", err)
	}
	if _, err := r.Rename("garbage", "???"); !errors.As(err, &invalid) {
		t.Errorf("expected ValidationError for empty rename slug, got %v", err)
	}
}

func TestCreateDuplicateName(t *testing.T) {
	r := openTestRegistry(t)
	r.Create("Garbage")

	_, err := r.Create("Garbage")
	var dup *DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	if dup.Name != "Garbage" {
		t.Errorf("expected conflicting name in error, got %q", dup.Name)
	}

	// Different name, same slug.
	_, err = r.Create("garbage!")
	if !errors.As(err, &dup) {
		t.Errorf("expected DuplicateNameError for slug collision, got %v", err)
	}
}

func TestRenameChangesID(t *testing.T) {
	r := openTestRegistry(t)
	created, _ := r.Create("Garbage")
	r.SetItems(created.ID, []string{"дешевый"})

	renamed, err := r.Rename("garbage", "Trash Words")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if renamed.ID != "trash-words" || renamed.Name != "Trash Words" {
		t.Errorf("unexpected filter after rename: %+v", renamed)
	}
	if len(renamed.Items) != 1 || renamed.Items[0] != "дешевый" {
		t.Errorf("items must survive rename, got %v", renamed.Items)
	}

	if _, err := r.Get("garbage"); err == nil {
		t.Error("expected old id to be gone")
	}
}

func TestRenameErrors(t *testing.T) {
	r := openTestRegistry(t)
	r.Create("Garbage")
	r.Create("Trash")

	var notFound *NotFoundError
	if _, err := r.Rename("missing", "Anything"); !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	var dup *DuplicateNameError
	if _, err := r.Rename("garbage", "Trash"); !errors.As(err, &dup) {
		t.Errorf("expected DuplicateNameError, got %v", err)
	}

	// Renaming to the same name is a no-op.
	f, err := r.Rename("garbage", "Garbage")
	if err != nil || f.ID != "garbage" {
		t.Errorf("expected no-op rename, got %+v / %v", f, err)
	}
}

func TestSetItemsNormalizes(t *testing.T) {
	r := openTestRegistry(t)
	r.Create("Garbage")

	f, err := r.SetItems("garbage", []string{" Дешевый ", "БУ", "", "  "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Items) != 2 {
		t.Fatalf("expected 2 items after normalization, got %v", f.Items)
	}
	if f.Items[0] != "дешевый" || f.Items[1] != "бу" {
		t.Errorf("expected lowercase trimmed items, got %v", f.Items)
	}
}

func TestSetItemsNotFound(t *testing.T) {
	r := openTestRegistry(t)
	var notFound *NotFoundError
	if _, err := r.SetItems("missing", []string{"x"}); !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	r := openTestRegistry(t)
	r.Create("Garbage")

	if err := r.Delete("garbage"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var notFound *NotFoundError
	if err := r.Delete("garbage"); !errors.As(err, &notFound) {
		t.Errorf("expected NotFoundError on second delete, got %v", err)
	}
}

func TestList(t *testing.T) {
	r := openTestRegistry(t)
	r.Create("Zeta")
	r.Create("Alpha")

	filters, err := r.List()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(filters) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(filters))
	}
	if filters[0].Name != "Alpha" {
		t.Errorf("expected name ordering, got %v", filters)
	}
}
