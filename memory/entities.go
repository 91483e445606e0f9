package memory

import (
	"regexp"
	"strings"
)

// EntityMatcher finds at most limit entities of one kind in text.
type EntityMatcher struct {
	Name  string
	Match func(text string, limit int) []string
}

// EntityMatchers is applied in order; results are concatenated then deduplicated.
var EntityMatchers = []EntityMatcher{
	{Name: "proper_noun", Match: ProperNouns},
	{Name: "file_name", Match: FileNames},
	{Name: "technology", Match: Technologies},
	{Name: "url", Match: URLs},
}

var (
	properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	fileNamePattern   = regexp.MustCompile(`\b[\w-]+\.(?:js|jsx|ts|tsx|py|java|cpp|go|rs|rb|html|css|json|yaml|yml|md|sql)\b`)
	technologyPattern = regexp.MustCompile(`\b(?:React|Vue|Angular|Node|Python|JavaScript|TypeScript|Java|Golang|Rust|Docker|Kubernetes|PostgreSQL|MySQL|MongoDB|Redis)\b|\bC\+\+`)
	urlPattern        = regexp.MustCompile(`\bhttps?://\S+`)
)

// ProperNouns matches runs of capitalised words such as "New York".
func ProperNouns(text string, limit int) []string {
	return properNounPattern.FindAllString(text, limit)
}

// FileNames matches names with a source or document extension, e.g. main.go.
func FileNames(text string, limit int) []string {
	return fileNamePattern.FindAllString(text, limit)
}

// Technologies matches a closed list of languages and tools.
func Technologies(text string, limit int) []string {
	return technologyPattern.FindAllString(text, limit)
}

// URLs matches http and https links, without trailing punctuation.
func URLs(text string, limit int) []string {
	found := urlPattern.FindAllString(text, limit)
	out := found[:0]
	for _, u := range found {
		u = strings.TrimRight(u, `.,;:!?)]}'"`)
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// ExtractEntities runs every matcher over text, each capped at limit matches,
// and returns the distinct results in discovery order.
func ExtractEntities(text string, limit int) []string {
	var all []string
	for _, m := range EntityMatchers {
		all = append(all, m.Match(text, limit)...)
	}
	return dedupe(all)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
