package types

// Tag is a tenant-owned skill tag with the keywords that detect it
type Tag struct {
	ID             string   `json:"tagId"`
	TenantID       string   `json:"tenantId"`
	Name           string   `json:"name"`
	Category       string   `json:"category,omitempty"`
	Keywords       []string `json:"keywords"`
	PriorityWeight float64  `json:"priorityWeight"` // > 0, boosts queue priority
	// ExpectedMatches is the keyword hit count treated as full confidence.
	// Zero means the catalog default (2).
	ExpectedMatches int `json:"expectedMatches,omitempty"`
}

// DetectedTag is one tag candidate derived from conversation text
type DetectedTag struct {
	TagID      string  `json:"tagId"`
	Confidence float64 `json:"confidence"` // 0..1
}
