package database

import (
	"database/sql"
	"fmt"
)

// UpsertKeywords merges records into a subcluster's corpus. A query already
// present keeps its ingestion position and takes the new count (last write
// wins); new queries are appended after the current maximum position.
// Stamps the corpus updated_at. Returns how many records were inserted vs
// updated.
func (db *DB) UpsertKeywords(subclusterID string, records []KeywordRecord) (inserted, updated int, err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var maxPos int
	if err := tx.QueryRow(
		"SELECT COALESCE(MAX(position), 0) FROM keywords WHERE subcluster_id = ?", subclusterID,
	).Scan(&maxPos); err != nil {
		return 0, 0, fmt.Errorf("reading max position: %w", err)
	}

	for _, r := range records {
		res, err := tx.Exec(
			"UPDATE keywords SET count = ? WHERE subcluster_id = ? AND query = ?",
			r.Count, subclusterID, r.Query,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("updating keyword %q: %w", r.Query, err)
		}
		n, _ := res.RowsAffected()
		if n > 0 {
			updated++
			continue
		}

		maxPos++
		if _, err := tx.Exec(
			"INSERT INTO keywords (subcluster_id, query, count, position) VALUES (?, ?, ?, ?)",
			subclusterID, r.Query, r.Count, maxPos,
		); err != nil {
			return 0, 0, fmt.Errorf("inserting keyword %q: %w", r.Query, err)
		}
		inserted++
	}

	if _, err := tx.Exec(
		`INSERT INTO corpus_meta (subcluster_id, updated_at) VALUES (?, datetime('now'))
		ON CONFLICT(subcluster_id) DO UPDATE SET updated_at = datetime('now')`,
		subclusterID,
	); err != nil {
		return 0, 0, fmt.Errorf("stamping corpus: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit upsert: %w", err)
	}
	return inserted, updated, nil
}

// GetKeywords returns a subcluster's records in ingestion order.
func (db *DB) GetKeywords(subclusterID string) ([]KeywordRecord, error) {
	rows, err := db.conn.Query(
		"SELECT query, count FROM keywords WHERE subcluster_id = ? ORDER BY position", subclusterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []KeywordRecord
	for rows.Next() {
		var r KeywordRecord
		if err := rows.Scan(&r.Query, &r.Count); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetCorpus returns a subcluster's corpus with display metadata resolved
// from the directory. Unknown subclusters get an empty corpus with blank
// metadata rather than an error.
func (db *DB) GetCorpus(subclusterID string) (*SubclusterCorpus, error) {
	corpus := &SubclusterCorpus{SubclusterID: subclusterID}

	records, err := db.GetKeywords(subclusterID)
	if err != nil {
		return nil, err
	}
	corpus.Records = records

	err = db.conn.QueryRow(
		`SELECT s.name, c.id, c.name FROM subclusters s
		JOIN clusters c ON s.cluster_id = c.id WHERE s.id = ?`, subclusterID,
	).Scan(&corpus.SubclusterName, &corpus.ClusterID, &corpus.ClusterName)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = db.conn.QueryRow(
		"SELECT updated_at FROM corpus_meta WHERE subcluster_id = ?", subclusterID,
	).Scan(&corpus.UpdatedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return corpus, nil
}

// GetCorpusUpdatedAt returns the last ingestion time, or "" if never ingested.
func (db *DB) GetCorpusUpdatedAt(subclusterID string) (string, error) {
	var updatedAt string
	err := db.conn.QueryRow(
		"SELECT updated_at FROM corpus_meta WHERE subcluster_id = ?", subclusterID,
	).Scan(&updatedAt)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return updatedAt, nil
}
