package sync

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// Folders whose documents stay local-only: cached and editable, never
// enqueued for replay.
var defaultIgnoreLines = []string{
	"drafts/",
	"trash/",
	"**/*.scratch",
}

// IgnoreList decides which document folders are excluded from sync,
// gitignore-style.
type IgnoreList struct {
	matcher *gitignore.GitIgnore
}

// NewIgnoreList compiles the default patterns plus any extra lines from
// config.
func NewIgnoreList(extra ...string) *IgnoreList {
	lines := append([]string{}, defaultIgnoreLines...)
	lines = append(lines, extra...)
	return &IgnoreList{
		matcher: gitignore.CompileIgnoreLines(lines...),
	}
}

// ShouldIgnore reports whether a document at this folder path is excluded
// from sync.
func (l *IgnoreList) ShouldIgnore(folder string) bool {
	if folder == "" {
		return false
	}
	return l.matcher.MatchesPath(folder)
}
