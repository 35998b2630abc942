package gitwork

import (
	"regexp"
	"strconv"
	"strings"
)

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases a feature name, collapses runs of non-alphanumeric
// characters to a single hyphen, trims leading/trailing hyphens, and caps
// the result at 50 characters. No slug-generation utility exists anywhere
// in the retrieved reference repos, so this is hand-rolled on stdlib
// regexp/strings rather than pulled from a library.
func slugify(name string) string {
	s := strings.ToLower(name)
	s = nonWord.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = s[:50]
		s = strings.TrimRight(s, "-")
	}
	return s
}

// featureBranchName builds the deterministic branch name for a feature.
func featureBranchName(id int, name string) string {
	return "feature/" + strconv.Itoa(id) + "-" + slugify(name)
}
