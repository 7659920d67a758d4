package generation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tagmaster/tagmaster-api/internal/models"

	"google.golang.org/genai"
)

// The model is instructed to answer in three delimited sections. Parsing is
// tolerant: a missing section degrades, it never fails the request.
var (
	captionRe  = regexp.MustCompile(`(?is)## CAPTION\s*(.*?)(?:## HASHTAGS|$)`)
	hashtagsRe = regexp.MustCompile(`(?is)## HASHTAGS\s*(.*?)(?:## ANALYSIS|$)`)
	analysisRe = regexp.MustCompile(`(?is)## ANALYSIS\s*(.*)$`)
	hashtagRe  = regexp.MustCompile(`#[a-zA-Z0-9_]+`)
)

const fallbackCaption = "Could not generate caption."

// ParseResponse extracts the caption, hashtag set and analysis from the raw
// model output.
func ParseResponse(raw string, sources []models.GroundingSource, strategy models.StrategyID) models.GenerationResult {
	captionMatch := captionRe.FindStringSubmatch(raw)
	hashtagsMatch := hashtagsRe.FindStringSubmatch(raw)
	analysisMatch := analysisRe.FindStringSubmatch(raw)

	caption := fallbackCaption
	if captionMatch != nil {
		caption = strings.TrimSpace(captionMatch[1])
	}

	// When the whole format degraded (no hashtag section either), the raw
	// text is the best analysis we have. With an intact hashtag section a
	// missing analysis stays empty.
	analysis := ""
	switch {
	case analysisMatch != nil:
		analysis = strings.TrimSpace(analysisMatch[1])
	case hashtagsMatch == nil:
		analysis = raw
	}

	hashtagSource := raw
	if hashtagsMatch != nil {
		hashtagSource = hashtagsMatch[1]
	}

	return models.GenerationResult{
		Caption:      caption,
		RawText:      raw,
		Analysis:     analysis,
		Hashtags:     uniqueHashtags(hashtagSource),
		Sources:      sources,
		StrategyUsed: strategy,
	}
}

// uniqueHashtags extracts #tags from text, collapsing exact (case-sensitive)
// duplicates. Output order is sorted so identical input yields identical output.
func uniqueHashtags(text string) []string {
	matches := hashtagRe.FindAllString(text, -1)

	seen := make(map[string]struct{}, len(matches))
	tags := make([]string, 0, len(matches))
	for _, tag := range matches {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	sort.Strings(tags)
	return tags
}

// ExtractSources pulls grounding citations out of the provider response.
// Entries without a usable URI are dropped.
func ExtractSources(resp *genai.GenerateContentResponse) []models.GroundingSource {
	sources := []models.GroundingSource{}
	if resp == nil || len(resp.Candidates) == 0 {
		return sources
	}

	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return sources
	}

	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		sources = append(sources, models.GroundingSource{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}

	return sources
}
