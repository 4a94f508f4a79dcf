// Package render holds the collaborators that produce the visual PDF an
// invoice XML is embedded into: a template renderer producing markup and a
// rasterizer turning markup into PDF bytes.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"sync"
)

// ErrNotConfigured is returned when a pipeline has no renderer or rasterizer
var ErrNotConfigured = errors.New("render: collaborator not configured")

// Renderer turns invoice data into markup using a named template
type Renderer interface {
	Render(ctx context.Context, templateKey string, data map[string]any) ([]byte, error)
}

// Rasterizer turns markup into PDF bytes
type Rasterizer interface {
	Rasterize(ctx context.Context, markup []byte) ([]byte, error)
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(ctx context.Context, templateKey string, data map[string]any) ([]byte, error)

// Render calls f
func (f RendererFunc) Render(ctx context.Context, templateKey string, data map[string]any) ([]byte, error) {
	return f(ctx, templateKey, data)
}

// RasterizerFunc adapts a function to Rasterizer
type RasterizerFunc func(ctx context.Context, markup []byte) ([]byte, error)

// Rasterize calls f
func (f RasterizerFunc) Rasterize(ctx context.Context, markup []byte) ([]byte, error) {
	return f(ctx, markup)
}

// TemplateRenderer renders HTML templates named "<key>.html" from a file
// system. Parsed templates are cached.
type TemplateRenderer struct {
	fsys  fs.FS
	funcs template.FuncMap

	mu    sync.RWMutex
	cache map[string]*template.Template
}

// NewTemplateRenderer creates a renderer over fsys
func NewTemplateRenderer(fsys fs.FS, funcs template.FuncMap) *TemplateRenderer {
	return &TemplateRenderer{
		fsys:  fsys,
		funcs: funcs,
		cache: make(map[string]*template.Template),
	}
}

// Render executes the template for templateKey against data
func (r *TemplateRenderer) Render(ctx context.Context, templateKey string, data map[string]any) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpl, err := r.template(templateKey)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", templateKey, err)
	}
	return buf.Bytes(), nil
}

func (r *TemplateRenderer) template(key string) (*template.Template, error) {
	if key == "" || strings.Contains(key, "..") || path.IsAbs(key) {
		return nil, fmt.Errorf("render: invalid template key %q", key)
	}

	r.mu.RLock()
	tmpl, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	name := key + ".html"
	tmpl, err := template.New(path.Base(name)).Funcs(r.funcs).ParseFS(r.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("render: load template %s: %w", key, err)
	}

	r.mu.Lock()
	r.cache[key] = tmpl
	r.mu.Unlock()
	return tmpl, nil
}
