package storage

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/Benny93/metrigraph/internal/resource"
)

var (
	separatorPattern = regexp.MustCompile(`[_\.\-\s/:]+`)
	camelPattern     = regexp.MustCompile(`([a-z])([A-Z])`)
)

// tokenize splits a resource name into searchable tokens.
// Handles camelCase, snake_case, dotted names and paths.
func tokenize(text string) []string {
	tokens := make(map[string]bool)
	if text == "" {
		return nil
	}

	tokens[strings.ToLower(text)] = true

	// Split on common separators (_, ., -, /, :, space)
	for _, part := range separatorPattern.Split(text, -1) {
		if part == "" {
			continue
		}
		tokens[strings.ToLower(part)] = true

		// Split camelCase: "UserService" -> "User", "Service"
		for _, sub := range strings.Fields(camelPattern.ReplaceAllString(part, "$1 $2")) {
			tokens[strings.ToLower(sub)] = true
		}
	}

	result := make([]string, 0, len(tokens))
	for token := range tokens {
		if len(token) >= 2 {
			result = append(result, token)
		}
	}
	sort.Strings(result)
	return result
}

// indexEntry is what the token index keeps per resource.
type indexEntry struct {
	key       string
	name      string
	qualifier resource.Qualifier
	view      resource.View
	path      string
}

func entryID(view resource.View, key string) string {
	return string(view) + "\x00" + key
}

// tokenIndex is an in-memory inverted index over resource names and
// qualified names. Callers synchronize access.
type tokenIndex struct {
	tokens  map[string]map[string]struct{}
	entries map[string]indexEntry
}

func newTokenIndex() *tokenIndex {
	return &tokenIndex{
		tokens:  make(map[string]map[string]struct{}),
		entries: make(map[string]indexEntry),
	}
}

func (x *tokenIndex) add(r *resource.Resource) {
	id := entryID(r.View, r.Key)
	x.entries[id] = indexEntry{key: r.Key, name: r.Name, qualifier: r.Qualifier, view: r.View, path: r.Path}

	text := r.Name + " " + r.LongName + " " + r.Path
	for _, token := range tokenize(text) {
		set, ok := x.tokens[token]
		if !ok {
			set = make(map[string]struct{})
			x.tokens[token] = set
		}
		set[id] = struct{}{}
	}
}

// idf weighs a token by how few resources contain it: 1 + log(N / df).
func (x *tokenIndex) idf(token string) float64 {
	df := len(x.tokens[token])
	if df == 0 {
		return 0
	}
	return 1 + math.Log(float64(len(x.entries))/float64(df))
}

// search scores resources by the summed idf of the query tokens they
// contain. An exact, case-insensitive name match scores an extra point.
func (x *tokenIndex) search(query string, limit int) []SearchResult {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []SearchResult{}
	}

	scores := make(map[string]float64)
	for _, token := range queryTokens {
		weight := x.idf(token)
		for id := range x.tokens[token] {
			scores[id] += weight
		}
	}

	lowered := strings.ToLower(query)
	results := make([]SearchResult, 0, len(scores))
	for id, score := range scores {
		e := x.entries[id]
		if strings.ToLower(e.name) == lowered {
			score++
		}
		results = append(results, SearchResult{
			Key:       e.key,
			Score:     score,
			Name:      e.name,
			Qualifier: e.qualifier,
			View:      e.view,
			Path:      e.path,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Key != results[j].Key {
			return results[i].Key < results[j].Key
		}
		return results[i].View < results[j].View
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
