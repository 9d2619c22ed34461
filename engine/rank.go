package engine

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/use-agent/regscout/models"
)

// Similarity scores how closely name matches the query, in [0, 1].
func Similarity(name, query string) float64 {
	a := strings.ToUpper(strings.Join(strings.Fields(name), " "))
	b := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return matchr.JaroWinkler(a, b, false)
}

// Rank orders records by Jaro-Winkler similarity to the query. Ties keep
// source order.
func Rank[T models.Record](records []T, query string) {
	if query == "" || len(records) < 2 {
		return
	}
	scores := make(map[string]float64, len(records))
	score := func(r T) float64 {
		k := r.DisplayName()
		if s, ok := scores[k]; ok {
			return s
		}
		s := Similarity(k, query)
		scores[k] = s
		return s
	}
	sort.SliceStable(records, func(i, j int) bool {
		return score(records[i]) > score(records[j])
	})
}
