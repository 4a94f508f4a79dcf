package render_test

import (
	"context"
	"html/template"
	"os/exec"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/render"
)

func TestTemplateRenderer(t *testing.T) {
	fsys := fstest.MapFS{
		"invoice.html":     {Data: []byte(`<h1>{{.number}}</h1><p>{{upper .buyer}}</p>`)},
		"credit/note.html": {Data: []byte(`<h1>Credit {{.number}}</h1>`)},
		"broken.html":      {Data: []byte(`{{.number`)},
	}
	r := render.NewTemplateRenderer(fsys, template.FuncMap{"upper": strings.ToUpper})
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		want    string
		wantErr bool
	}{
		{name: "simple", key: "invoice", want: `<h1>INV-1</h1><p>KUNDE &amp; CO</p>`},
		{name: "nested", key: "credit/note", want: `<h1>Credit INV-1</h1>`},
		{name: "missing", key: "absent", wantErr: true},
		{name: "parse error", key: "broken", wantErr: true},
		{name: "escape attempt", key: "../secret", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Render(ctx, tt.key, map[string]any{"number": "INV-1", "buyer": "Kunde & Co"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(out))
		})
	}
}

func TestTemplateRenderer_Cancelled(t *testing.T) {
	r := render.NewTemplateRenderer(fstest.MapFS{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Render(ctx, "invoice", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFuncAdapters(t *testing.T) {
	var renderer render.Renderer = render.RendererFunc(func(_ context.Context, key string, _ map[string]any) ([]byte, error) {
		return []byte("<p>" + key + "</p>"), nil
	})
	var rasterizer render.Rasterizer = render.RasterizerFunc(func(_ context.Context, markup []byte) ([]byte, error) {
		return append([]byte("%PDF-"), markup...), nil
	})

	markup, err := renderer.Render(context.Background(), "basic", nil)
	require.NoError(t, err)
	pdf, err := rasterizer.Rasterize(context.Background(), markup)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-<p>basic</p>", string(pdf))
}

func TestCommandRasterizer_Unavailable(t *testing.T) {
	r := render.NewCommandRasterizer("facturx-no-such-converter", render.InputPlaceholder, render.OutputPlaceholder)
	assert.False(t, r.IsAvailable())

	_, err := r.Rasterize(context.Background(), []byte("<html/>"))
	assert.ErrorIs(t, err, render.ErrNotConfigured)
}

func TestCommandRasterizer_RunsConverter(t *testing.T) {
	if _, err := exec.LookPath("cp"); err != nil {
		t.Skip("cp not available")
	}
	r := render.NewCommandRasterizer("cp", render.InputPlaceholder, render.OutputPlaceholder)
	require.True(t, r.IsAvailable())

	out, err := r.Rasterize(context.Background(), []byte("%PDF-1.7 copied"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7 copied", string(out))

	_, err = r.Rasterize(context.Background(), []byte("<html/>"))
	assert.ErrorContains(t, err, "did not produce a PDF")
}
