package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnoreListDefaults(t *testing.T) {
	l := NewIgnoreList()

	assert.True(t, l.ShouldIgnore("drafts/ideas"))
	assert.True(t, l.ShouldIgnore("trash/old"))
	assert.True(t, l.ShouldIgnore("work/notes/tmp.scratch"))
	assert.False(t, l.ShouldIgnore("work/reports"))
	assert.False(t, l.ShouldIgnore(""))
}

func TestIgnoreListExtraPatterns(t *testing.T) {
	l := NewIgnoreList("private/", "*.secret")

	assert.True(t, l.ShouldIgnore("private/journal"))
	assert.True(t, l.ShouldIgnore("ideas.secret"))
	assert.False(t, l.ShouldIgnore("public/journal"))
}
