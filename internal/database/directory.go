package database

import "database/sql"

// InsertCluster inserts a cluster directory entry. Returns false if the id
// already exists.
func (db *DB) InsertCluster(id, name string) (bool, error) {
	_, err := db.conn.Exec(
		"INSERT INTO clusters (id, name) VALUES (?, ?)", id, name,
	)
	if err != nil {
		// Duplicate id constraint
		return false, nil //nolint: nilerr
	}
	return true, nil
}

// InsertSubcluster inserts a subcluster under a cluster. Fails when the
// cluster does not exist or the id is already taken.
func (db *DB) InsertSubcluster(id, clusterID, name string) (bool, error) {
	_, err := db.conn.Exec(
		"INSERT INTO subclusters (id, cluster_id, name) VALUES (?, ?, ?)",
		id, clusterID, name,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetSubclusterMeta resolves display metadata for a subcluster, or nil if
// the subcluster is not in the directory.
func (db *DB) GetSubclusterMeta(subclusterID string) (*SubclusterMeta, error) {
	var meta SubclusterMeta
	err := db.conn.QueryRow(
		`SELECT c.id, c.name, s.name FROM subclusters s
		JOIN clusters c ON s.cluster_id = c.id WHERE s.id = ?`, subclusterID,
	).Scan(&meta.ClusterID, &meta.ClusterName, &meta.SubclusterName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

// ListClusters returns all clusters ordered by name.
func (db *DB) ListClusters() ([]Cluster, error) {
	rows, err := db.conn.Query("SELECT id, name FROM clusters ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// ListSubclusters returns a cluster's subclusters ordered by name.
func (db *DB) ListSubclusters(clusterID string) ([]Subcluster, error) {
	rows, err := db.conn.Query(
		"SELECT id, cluster_id, name FROM subclusters WHERE cluster_id = ? ORDER BY name", clusterID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subcluster
	for rows.Next() {
		var s Subcluster
		if err := rows.Scan(&s.ID, &s.ClusterID, &s.Name); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// GetStats returns aggregate store statistics for the status command.
func (db *DB) GetStats() (*Stats, error) {
	stats := &Stats{}
	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM clusters", &stats.Clusters},
		{"SELECT COUNT(*) FROM subclusters", &stats.Subclusters},
		{"SELECT COUNT(*) FROM keywords", &stats.Keywords},
		{"SELECT COUNT(*) FROM filters", &stats.Filters},
		{"SELECT COUNT(*) FROM configs", &stats.Configs},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
