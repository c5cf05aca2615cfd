package database

import "database/sql"

// GetConfigDoc returns the raw cached config document for a subcluster.
// The second return is false when no document is cached. Decoding is the
// reconciler's job so that malformed JSON can be handled in one place.
func (db *DB) GetConfigDoc(subclusterID string) ([]byte, bool, error) {
	var doc string
	err := db.conn.QueryRow(
		"SELECT doc FROM configs WHERE subcluster_id = ?", subclusterID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(doc), true, nil
}

// PutConfigDoc writes the cached config document for a subcluster.
func (db *DB) PutConfigDoc(subclusterID string, doc []byte) error {
	_, err := db.conn.Exec(
		`INSERT INTO configs (subcluster_id, doc, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(subcluster_id) DO UPDATE SET doc = excluded.doc, updated_at = datetime('now')`,
		subclusterID, string(doc),
	)
	return err
}

// AllConfigDocs returns every cached config document keyed by subcluster id.
func (db *DB) AllConfigDocs() (map[string][]byte, error) {
	rows, err := db.conn.Query("SELECT subcluster_id, doc FROM configs")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make(map[string][]byte)
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		docs[id] = []byte(doc)
	}
	return docs, rows.Err()
}
