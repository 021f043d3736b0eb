package styles_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/arthur-debert/keystash/pkg/ui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStyleRegistry(t *testing.T) {
	for _, name := range []string{"Header", "Success", "Error", "Warning", "Info", "Muted", "Bold", "FilePath", "Rule", "Indent"} {
		t.Run(name, func(t *testing.T) {
			_, ok := styles.StyleRegistry[name]
			assert.True(t, ok, "style %s should exist", name)
		})
	}
}

func TestGetStyle(t *testing.T) {
	assert.True(t, styles.GetStyle("Success").GetBold())
	assert.Equal(t, 2, styles.GetStyle("Indent").GetPaddingLeft())
	assert.Equal(t, lipgloss.NewStyle().GetBold(), styles.GetStyle("NoSuchStyle").GetBold())
}

func TestLoadStyles(t *testing.T) {
	t.Cleanup(func() {
		require.NoError(t, styles.LoadStyles(filepath.Join(".", "styles.yaml")))
	})

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("styles:\n  Success:\n    italic: true\n"), 0600))
	require.NoError(t, styles.LoadStyles(path))
	assert.True(t, styles.GetStyle("Success").GetItalic())
	assert.False(t, styles.GetStyle("Success").GetBold())

	assert.Error(t, styles.LoadStyles(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, styles.LoadStylesFromData([]byte("styles: [")))
}

func TestRender_PlainWhenNotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.Equal(t, "done", styles.Render(f, "Success", "done"))
	assert.Equal(t, "done", styles.Render(nil, "Success", "done"))
	assert.Equal(t, "done", styles.Render(&bytes.Buffer{}, "Success", "done"))
}
