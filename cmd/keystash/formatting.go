package keystash

import (
	"os"
	"strings"
	"text/template"

	"github.com/arthur-debert/keystash/pkg/ui/styles"
	"github.com/spf13/cobra"
)

// formatBold returns the string formatted as bold on a terminal
func formatBold(s string) string {
	return styles.Render(os.Stdout, "Bold", s)
}

// formatUpper returns the string in uppercase
func formatUpper(s string) string {
	return strings.ToUpper(s)
}

// formatBoldUpper returns the string in uppercase and bold
func formatBoldUpper(s string) string {
	return formatBold(strings.ToUpper(s))
}

// initTemplateFormatting adds custom formatting functions to Cobra templates
func initTemplateFormatting() {
	cobra.AddTemplateFuncs(template.FuncMap{
		"bold":      formatBold,
		"upper":     formatUpper,
		"boldUpper": formatBoldUpper,
	})
}
