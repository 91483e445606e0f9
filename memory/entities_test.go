package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProperNouns(t *testing.T) {
	got := ProperNouns("we met Ada Lovelace in London and I said hi", 10)
	assert.Equal(t, []string{"Ada Lovelace", "London"}, got)
}

func TestFileNames(t *testing.T) {
	got := FileNames("edit main.go, then app.tsx and config.json but not example.com", 10)
	assert.Equal(t, []string{"main.go", "app.tsx", "config.json"}, got)
}

func TestTechnologies(t *testing.T) {
	got := Technologies("JavaScript, Java and C++ with Docker; Reactive is not React", 10)
	assert.Equal(t, []string{"JavaScript", "Java", "C++", "Docker", "React"}, got)
}

func TestURLs(t *testing.T) {
	got := URLs("see https://example.com/a?b=1, or http://go.dev.", 10)
	assert.Equal(t, []string{"https://example.com/a?b=1", "http://go.dev"}, got)
}

func TestMatcherLimit(t *testing.T) {
	text := strings.Repeat("Alpha beta ", 30)
	assert.Len(t, ProperNouns(text, 10), 10)
	assert.Len(t, ExtractEntities(text, 10), 1)
}

func TestExtractEntitiesScenario(t *testing.T) {
	line := "I love React and TypeScript, see https://example.com and file.py"

	once := ExtractEntities(line, 10)
	assert.ElementsMatch(t, []string{"React", "TypeScript", "https://example.com", "file.py"}, once)

	twice := ExtractEntities(line+" "+line, 10)
	assert.ElementsMatch(t, once, twice)
}

func TestExtractEntitiesNoDuplicates(t *testing.T) {
	got := ExtractEntities("Python Python python.py Python https://x.io https://x.io", 10)
	seen := map[string]bool{}
	for _, e := range got {
		assert.False(t, seen[e], "duplicate %q", e)
		seen[e] = true
	}
	assert.Contains(t, got, "Python")
	assert.Contains(t, got, "python.py")
	assert.Contains(t, got, "https://x.io")
}
