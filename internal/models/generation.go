package models

// GenerationRequest is the ephemeral input to one metered generation.
type GenerationRequest struct {
	Theme    string     `json:"theme"`
	Strategy StrategyID `json:"strategy"`
}

// GroundingSource is one citation returned by a search-grounded generation.
type GroundingSource struct {
	Title string `json:"title,omitzero"`
	URI   string `json:"uri"`
}

// GenerationResult is returned to the caller and never persisted.
type GenerationResult struct {
	Caption      string            `json:"caption"`
	RawText      string            `json:"raw_text"`
	Analysis     string            `json:"analysis"`
	Hashtags     []string          `json:"hashtags"`
	Sources      []GroundingSource `json:"sources"`
	StrategyUsed StrategyID        `json:"strategy_used"`
}
