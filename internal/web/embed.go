package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/url"
	"strings"

	"github.com/hugh/reconsole/internal/console"
)

//go:embed templates
var TemplatesFS embed.FS

//go:embed static
var StaticFS embed.FS

// Funcs are available to every page.
var Funcs = template.FuncMap{
	// line.Text is already escaped by console.HTMLMarkup
	"logHTML": func(line console.RenderedLine) template.HTML {
		return template.HTML(line.Text)
	},
	"lower": strings.ToLower,
	"scanURL": scanURL,
	"fileURL": func(scanID, name string) string {
		return scanURL(scanID) + "/files/" + url.PathEscape(name)
	},
}

func scanURL(scanID string) string {
	return "/scans/" + url.PathEscape(scanID)
}

// LoadTemplates parses all templates from the embedded filesystem
// Each page gets its own template with the base layout
func LoadTemplates() (*template.Template, error) {
	baseContent, err := fs.ReadFile(TemplatesFS, "templates/layouts/base.html")
	if err != nil {
		return nil, err
	}

	tmpl := template.New("").Funcs(Funcs)

	entries, err := fs.ReadDir(TemplatesFS, "templates/pages")
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pageContent, err := fs.ReadFile(TemplatesFS, "templates/pages/"+entry.Name())
		if err != nil {
			return nil, err
		}

		// base first, then the page which fills its blocks
		pageTmpl := tmpl.New(entry.Name())
		if _, err := pageTmpl.Parse(string(baseContent)); err != nil {
			return nil, err
		}
		if _, err := pageTmpl.Parse(string(pageContent)); err != nil {
			return nil, err
		}
	}

	return tmpl, nil
}

// GetStaticFS returns the static file system for serving static files
func GetStaticFS() (fs.FS, error) {
	return fs.Sub(StaticFS, "static")
}
