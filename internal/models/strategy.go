package models

// StrategyID names one hashtag-composition heuristic.
type StrategyID string

const (
	StrategyPillar         StrategyID = "PILLAR"
	StrategyNicheDominance StrategyID = "NICHE_DOMINANCE"
	StrategyViralTrending  StrategyID = "VIRAL_TRENDING"
	StrategyMixedBag       StrategyID = "MIXED_BAG"
)

// DistributionSlice describes one segment of a strategy's hashtag mix.
type DistributionSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// Strategy is a named hashtag heuristic. PromptContext is the machine-readable
// rule text embedded verbatim into the generation prompt.
type Strategy struct {
	ID            StrategyID          `json:"id"`
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	Icon          string              `json:"icon"`
	Distribution  []DistributionSlice `json:"distribution"`
	PromptContext string              `json:"prompt_context"`
}

// Strategies is the fixed catalog, ordered for display.
var Strategies = []Strategy{
	{
		ID:          StrategyPillar,
		Name:        "The Pillar Method",
		Description: "Balanced mix of high-traffic, medium-sized, and community-specific tags to maximize both reach and engagement.",
		Icon:        "🏛️",
		Distribution: []DistributionSlice{
			{Name: "Broad (High Vol)", Value: 20, Color: "#F472B6"},
			{Name: "Niche (Mid Vol)", Value: 60, Color: "#A78BFA"},
			{Name: "Community (Low Vol)", Value: 20, Color: "#34D399"},
		},
		PromptContext: "Use the 'Pillar Strategy': Provide 30 hashtags. 20% should be broad/high volume (1M+ posts), 60% should be highly relevant niche tags (50k-500k posts), and 20% should be specific community/low volume tags (<50k posts). Group them explicitly by these categories.",
	},
	{
		ID:          StrategyNicheDominance,
		Name:        "Niche Dominance",
		Description: "Focus purely on specific, highly relevant keywords to dominate smaller explore pages and rank higher.",
		Icon:        "🎯",
		Distribution: []DistributionSlice{
			{Name: "Ultra Specific", Value: 50, Color: "#60A5FA"},
			{Name: "Descriptive", Value: 50, Color: "#818CF8"},
		},
		PromptContext: "Use the 'Niche Dominance' strategy: Provide 30 hashtags that are highly specific to the topic. Avoid generic one-word tags. Focus on multi-word tags that describe the visual content and the target audience precisely.",
	},
	{
		ID:          StrategyViralTrending,
		Name:        "Viral & Trending",
		Description: "Leverage Google Search to find what is currently trending around this topic to ride the wave of popularity.",
		Icon:        "🔥",
		Distribution: []DistributionSlice{
			{Name: "Trending Now", Value: 70, Color: "#FB7185"},
			{Name: "Evergreen", Value: 30, Color: "#FBBF24"},
		},
		PromptContext: "Use the 'Viral Strategy': Use Google Search to identify CURRENT trending topics and challenges related to this theme. Provide hashtags that are spiking in popularity right now, combined with strong evergreen tags.",
	},
	{
		ID:          StrategyMixedBag,
		Name:        "The 3x3 Matrix",
		Description: "A diversified portfolio of hashtags targeting location, subject, and community equally.",
		Icon:        "🎲",
		Distribution: []DistributionSlice{
			{Name: "Subject", Value: 33, Color: "#C084FC"},
			{Name: "Location/Context", Value: 33, Color: "#22D3EE"},
			{Name: "Community", Value: 34, Color: "#4ADE80"},
		},
		PromptContext: "Use the '3x3 Matrix Strategy': Divide hashtags into 3 equal groups: 1. Subject-based (what is in the photo), 2. Context/Location-based (where/vibes), 3. Community-based (who is this for).",
	},
}

// StrategyByID looks up a catalog entry.
func StrategyByID(id StrategyID) (Strategy, bool) {
	for _, s := range Strategies {
		if s.ID == id {
			return s, true
		}
	}
	return Strategy{}, false
}
