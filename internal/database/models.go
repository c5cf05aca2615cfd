package database

// KeywordRecord is one (query, frequency) pair inside a subcluster corpus.
type KeywordRecord struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// SubclusterCorpus is the full keyword set of one subcluster, with display
// metadata resolved from the cluster directory when available.
type SubclusterCorpus struct {
	SubclusterID   string
	SubclusterName string
	ClusterID      string
	ClusterName    string
	Records        []KeywordRecord
	UpdatedAt      string
}

// Filter is a named minus-word list. Items are lowercase tokens; order
// matters for display only.
type Filter struct {
	ID        string
	Name      string
	Items     []string
	CreatedAt string
	UpdatedAt string
}

// BindingConfig is the per-subcluster configuration document. It is stored
// as JSON both in the local cache and in the remote mirror, so the field
// tags define the persisted layout.
type BindingConfig struct {
	Models       []string `json:"models"`
	Filters      []string `json:"filters"`
	ApplyFilters bool     `json:"applyFilters"`
	MinFrequency int      `json:"minFrequency"`
}

// Cluster is a directory entry grouping subclusters.
type Cluster struct {
	ID   string
	Name string
}

// Subcluster is a directory entry under a cluster.
type Subcluster struct {
	ID        string
	ClusterID string
	Name      string
}

// SubclusterMeta is the display metadata the sync engine resolves per target.
type SubclusterMeta struct {
	ClusterID      string
	ClusterName    string
	SubclusterName string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Clusters    int
	Subclusters int
	Keywords    int
	Filters     int
	Configs     int
}
