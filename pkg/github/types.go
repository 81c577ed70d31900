package github

// DependentRepo is a candidate repository flowing through the pipeline.
//
// Search produces partial values (identity, fork flag, manifest path);
// enrichment completes them (stars, push date, archived flag, verified
// version and dependency type). Stages never mutate a DependentRepo in
// place; each stage produces a new slice.
type DependentRepo struct {
	Owner        string `json:"owner"`
	Name         string `json:"name"`
	FullName     string `json:"fullName"` // identity key, "owner/name"
	Stars        int    `json:"stars"`
	LastPush     string `json:"lastPush,omitempty"` // RFC 3339, empty if unknown
	AvatarURL    string `json:"avatarUrl,omitempty"`
	IsFork       bool   `json:"isFork"`
	Archived     bool   `json:"archived"`
	ManifestPath string `json:"manifestPath,omitempty"`
	Version      string `json:"version,omitempty"`
	DepType      string `json:"depType,omitempty"`
}

// ScoredRepo is a DependentRepo with its recency-decayed popularity score.
// Produced once, by the filter & score stage; slices of ScoredRepo are
// always ordered by score descending with a stable tie-break.
type ScoredRepo struct {
	DependentRepo
	Score float64 `json:"score"`
}
