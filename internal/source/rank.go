package source

import (
	"path"
	"sort"
	"strings"
	"unicode"
)

// NameTokens splits a file or object name into lowercase tag tokens:
// "news/stock-market_crash.jpg" -> [news stock market crash].
func NameTokens(name string) []string {
	name = strings.TrimSuffix(name, path.Ext(name))
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

type ranked struct {
	id    string
	score int
}

// RankByTags orders ids by how many keywords appear in their tags.
// Ties keep the input order so results are deterministic.
func RankByTags(ids []string, tags map[string][]string, keywords []string) []string {
	want := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		want[strings.ToLower(k)] = true
	}

	rs := make([]ranked, len(ids))
	for i, id := range ids {
		score := 0
		for _, t := range tags[id] {
			if want[t] {
				score++
			}
		}
		rs[i] = ranked{id: id, score: score}
	}
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].score > rs[j].score })

	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.id
	}
	return out
}
