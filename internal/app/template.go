package app

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin/render"

	"github.com/simp-lee/practiceadmin/internal/browse"
)

// TemplateRenderer renders the console pages and fragments.
//
// Layouts (templates/layouts/*.html) and partials (templates/partials/*.html)
// form a base set. Every other file under templates/ is a page: it is parsed
// on a clone of the base set and registered under its path relative to
// templates/, e.g. "practice/list.html". A page either invokes the layout with
// {{ template "base" . }} or, for htmx fragments, renders a partial directly.
//
// In debug mode the files are parsed again for every render so edits show up
// without a restart.
type TemplateRenderer struct {
	templates map[string]*template.Template
	fs        fs.FS
	funcMap   template.FuncMap
	debug     bool
}

var _ render.HTMLRender = (*TemplateRenderer)(nil)

// NewTemplateRenderer creates a TemplateRenderer reading from fsys, which must
// contain the templates/ directory. Outside debug mode the templates are
// parsed once, here.
func NewTemplateRenderer(fsys fs.FS, debug bool) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		fs:      fsys,
		funcMap: templateFuncMap(),
		debug:   debug,
	}

	if !debug {
		templates, err := r.parseAllTemplates()
		if err != nil {
			return nil, fmt.Errorf("parse templates: %w", err)
		}
		r.templates = templates
	}

	return r, nil
}

// Instance implements render.HTMLRender for c.HTML.
func (r *TemplateRenderer) Instance(name string, data any) render.Render {
	templates, err := r.current()
	if err != nil {
		return &HTMLInstance{Name: name, err: err}
	}
	return &HTMLInstance{
		Template: templates[name],
		Name:     name,
		Data:     data,
	}
}

// ExecuteTemplate renders the page name to w outside of a gin response, for
// fragments pushed over server-sent events.
func (r *TemplateRenderer) ExecuteTemplate(w io.Writer, name string, data any) error {
	templates, err := r.current()
	if err != nil {
		return err
	}
	t, ok := templates[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, name, data)
}

func (r *TemplateRenderer) current() (map[string]*template.Template, error) {
	if r.debug {
		return r.parseAllTemplates()
	}
	return r.templates, nil
}

func (r *TemplateRenderer) parseAllTemplates() (map[string]*template.Template, error) {
	layoutFiles, err := fs.Glob(r.fs, "templates/layouts/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob layouts: %w", err)
	}
	partialFiles, err := fs.Glob(r.fs, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob partials: %w", err)
	}

	base := template.New("").Funcs(r.funcMap)
	for _, f := range append(layoutFiles, partialFiles...) {
		content, err := fs.ReadFile(r.fs, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := base.New(f).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
	}

	pageFiles, err := r.discoverPageTemplates()
	if err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}

	templates := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base for %s: %w", pf, err)
		}
		content, err := fs.ReadFile(r.fs, pf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", pf, err)
		}
		name := strings.TrimPrefix(pf, "templates/")
		if _, err := clone.New(name).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", pf, err)
		}
		templates[name] = clone
	}

	return templates, nil
}

// discoverPageTemplates lists the .html files under templates/ outside
// layouts/ and partials/.
func (r *TemplateRenderer) discoverPageTemplates() ([]string, error) {
	var pages []string
	err := fs.WalkDir(r.fs, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		rel := strings.TrimPrefix(path, "templates/")
		if strings.HasPrefix(rel, "layouts/") || strings.HasPrefix(rel, "partials/") {
			return nil
		}
		pages = append(pages, path)
		return nil
	})
	return pages, err
}

var weekdays = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func templateFuncMap() template.FuncMap {
	return template.FuncMap{
		// json is for data attributes such as hx-vals.
		"json": func(v any) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				return template.JS("null")
			}
			return template.JS(b)
		},

		"formatDate": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},

		// field builds the name of a nested form input:
		// field "team_members" 0 "first_name" is "team_members[0].first_name".
		"field": func(list string, i int, name string) string {
			return fmt.Sprintf("%s[%d].%s", list, i, name)
		},

		"weekday": func(day int) string {
			if day < 0 || day >= len(weekdays) {
				return ""
			}
			return weekdays[day]
		},

		// arrow marks the sort direction of a column header.
		"arrow": func(d browse.Direction) string {
			switch d {
			case browse.Asc:
				return "▲"
			case browse.Desc:
				return "▼"
			default:
				return ""
			}
		},
	}
}

// HTMLInstance is one execution of a page template.
type HTMLInstance struct {
	Template *template.Template
	Name     string
	Data     any
	err      error
}

const htmlContentType = "text/html; charset=utf-8"

// Render writes the template output to w.
func (h *HTMLInstance) Render(w http.ResponseWriter) error {
	h.WriteContentType(w)
	if h.err != nil {
		return h.err
	}
	if h.Template == nil {
		return fmt.Errorf("template %q not found", h.Name)
	}
	return h.Template.ExecuteTemplate(w, h.Name, h.Data)
}

// WriteContentType sets an HTML Content-Type unless one is set already.
func (h *HTMLInstance) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{htmlContentType}
	}
}
