package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertFilter inserts a filter row with empty items.
func (db *DB) InsertFilter(id, name string) error {
	_, err := db.conn.Exec(
		"INSERT INTO filters (id, name) VALUES (?, ?)", id, name,
	)
	return err
}

// GetFilter returns a filter by id, or nil if absent.
func (db *DB) GetFilter(id string) (*Filter, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, items, created_at, updated_at FROM filters WHERE id = ?", id,
	)
	return scanFilter(row)
}

// GetFilterByName returns a filter by exact name, or nil if absent.
func (db *DB) GetFilterByName(name string) (*Filter, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, items, created_at, updated_at FROM filters WHERE name = ?", name,
	)
	return scanFilter(row)
}

// ListFilters returns all filters ordered by name.
func (db *DB) ListFilters() ([]Filter, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, items, created_at, updated_at FROM filters ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var filters []Filter
	for rows.Next() {
		var f Filter
		var items string
		if err := rows.Scan(&f.ID, &f.Name, &items, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(items), &f.Items); err != nil {
			return nil, fmt.Errorf("decoding items for filter %s: %w", f.ID, err)
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// UpdateFilterItems replaces the full items array of a filter.
func (db *DB) UpdateFilterItems(id string, items []string) error {
	if items == nil {
		items = []string{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding items: %w", err)
	}
	_, err = db.conn.Exec(
		"UPDATE filters SET items = ?, updated_at = datetime('now') WHERE id = ?",
		string(encoded), id,
	)
	return err
}

// RenameFilter changes a filter's id and name in one statement. The id
// changes because it is derived from the name.
func (db *DB) RenameFilter(oldID, newID, newName string) error {
	_, err := db.conn.Exec(
		"UPDATE filters SET id = ?, name = ?, updated_at = datetime('now') WHERE id = ?",
		newID, newName, oldID,
	)
	return err
}

// DeleteFilter removes a filter row. Returns false if nothing was deleted.
func (db *DB) DeleteFilter(id string) (bool, error) {
	res, err := db.conn.Exec("DELETE FROM filters WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanFilter(row *sql.Row) (*Filter, error) {
	var f Filter
	var items string
	err := row.Scan(&f.ID, &f.Name, &items, &f.CreatedAt, &f.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &f.Items); err != nil {
		return nil, fmt.Errorf("decoding items for filter %s: %w", f.ID, err)
	}
	return &f, nil
}
