package rules_test

import (
	"testing"

	"github.com/arthur-debert/keystash/pkg/rules"
	"github.com/stretchr/testify/assert"
)

func TestFileSet(t *testing.T) {
	set := rules.NewFileSet()

	assert.True(t, set.Add("/b"))
	assert.True(t, set.Add("/a"))
	assert.False(t, set.Add("/b"))

	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("/a"))
	assert.False(t, set.Contains("/c"))
	assert.Equal(t, []string{"/b", "/a"}, set.Paths())

	// Paths returns a copy
	got := set.Paths()
	got[0] = "/mutated"
	assert.Equal(t, "/b", set.Paths()[0])
}
