package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"
)

//go:embed templates
var templateFS embed.FS

var pages = []string{"list.html", "post.html", "post_form.html", "auth.html", "404.html", "500.html"}

type renderer struct {
	templates map[string]*template.Template
}

func newRenderer(mediaURL func(string) string) (*renderer, error) {
	funcs := template.FuncMap{
		"mediaURL":  mediaURL,
		"isoDate":   func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"humanDate": func(t time.Time) string { return t.Format("2 Jan 2006 15:04") },
	}

	r := &renderer{templates: make(map[string]*template.Template, len(pages))}
	for _, page := range pages {
		t, err := template.New(page).Funcs(funcs).ParseFS(templateFS,
			"templates/base.html",
			"templates/includes/*.html",
			"templates/"+page,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		r.templates[page] = t
	}
	return r, nil
}

// render executes page into a buffer first so a failing template never
// leaves a half written response.
func (r *renderer) render(w http.ResponseWriter, status int, page string, data any) error {
	t, ok := r.templates[page]
	if !ok {
		return fmt.Errorf("template %s is missing", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
