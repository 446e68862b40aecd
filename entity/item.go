package entity

// Item is one identified wine within a scan, with enrichment fields filled in
// by the pipeline. Identification fields come from extraction and survive
// even when enrichment fails; Error annotates a per-item enrichment failure.
type Item struct {
	Name     string `json:"name,omitempty"`
	Vintage  string `json:"vintage,omitempty"`
	Producer string `json:"producer,omitempty"`
	Region   string `json:"region,omitempty"`
	Varietal string `json:"varietal,omitempty"`

	Score          int            `json:"score"`
	Summary        string         `json:"summary,omitempty"`
	Pairings       []string       `json:"pairings,omitempty"`
	PriceEstimate  string         `json:"price_estimate,omitempty"`
	ValueRatio     string         `json:"value_ratio,omitempty"`
	FlavorProfile  map[string]int `json:"flavor_profile,omitempty"`
	ReviewSnippets []string       `json:"review_snippets,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`

	Error string `json:"error,omitempty"`
}

// DisplayName returns the best label available for summaries.
func (i Item) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	if i.Producer != "" {
		return i.Producer
	}
	return "unknown"
}
