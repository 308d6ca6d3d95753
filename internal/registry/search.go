package registry

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// SearchResult is one ranked hit from a discovery query.
type SearchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Permission  string `json:"permission"`
}

// Search ranks registered tools against a free-text query for discovery.
// Exact substring hits in the name score highest, then fuzzy name matches,
// then description hits. Ties break by name so results are stable.
func (r *Registry) Search(query string, category string, limit int) []SearchResult {
	if limit <= 0 {
		limit = 10
	}
	query = strings.ToLower(strings.TrimSpace(query))

	type scored struct {
		result SearchResult
		score  int
	}
	var hits []scored

	for _, name := range r.names {
		def := r.tools[name].Def
		if category != "" && !strings.EqualFold(def.Category, category) {
			continue
		}

		score := 0
		nameLower := strings.ToLower(def.Name)
		descLower := strings.ToLower(def.Description)

		if query == "" {
			score = 1 // category-only browse
		} else {
			if strings.Contains(nameLower, query) {
				score += 100
			}
			if fuzzy.Match(query, nameLower) {
				score += 50
			}
			if strings.Contains(descLower, query) {
				score += 30
			}
		}

		if score > 0 {
			hits = append(hits, scored{
				result: SearchResult{
					Name:        def.Name,
					Description: truncateDescription(def.Description, 120),
					Category:    def.Category,
					Permission:  string(def.Permission),
				},
				score: score,
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].result.Name < hits[j].result.Name
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results
}

func truncateDescription(desc string, maxLen int) string {
	if len(desc) <= maxLen {
		return desc
	}
	return desc[:maxLen-3] + "..."
}
