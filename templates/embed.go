// Package templates holds the HTML pages served by the setup routes.
package templates

import (
	"embed"
	"fmt"
	"html/template"
)

//go:embed *.html
var FS embed.FS

// Load parses every page of the embedded filesystem.
func Load() (*template.Template, error) {
	tmpl, err := template.ParseFS(FS, "*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}
