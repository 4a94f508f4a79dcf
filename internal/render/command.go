package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Placeholders substituted in rasterizer arguments
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// pdfMagic starts every PDF file
var pdfMagic = []byte("%PDF")

// CommandRasterizer runs an external HTML to PDF converter. The markup is
// written to a temporary file and the converter writes the PDF next to it.
type CommandRasterizer struct {
	path      string
	args      []string
	available bool
	timeout   time.Duration
}

// NewCommandRasterizer uses the given program and argument template. The
// arguments must reference InputPlaceholder and OutputPlaceholder.
func NewCommandRasterizer(program string, args ...string) *CommandRasterizer {
	path, err := exec.LookPath(program)
	return &CommandRasterizer{
		path:      path,
		args:      args,
		available: err == nil,
		timeout:   60 * time.Second,
	}
}

// DetectRasterizer looks for a known converter in common locations
func DetectRasterizer() *CommandRasterizer {
	candidates := []struct {
		program string
		args    []string
	}{
		{"wkhtmltopdf", []string{"--quiet", InputPlaceholder, OutputPlaceholder}},
		{"chromium", []string{"--headless", "--disable-gpu", "--no-pdf-header-footer", "--print-to-pdf=" + OutputPlaceholder, InputPlaceholder}},
		{"google-chrome", []string{"--headless", "--disable-gpu", "--no-pdf-header-footer", "--print-to-pdf=" + OutputPlaceholder, InputPlaceholder}},
		{"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome", []string{"--headless", "--disable-gpu", "--print-to-pdf=" + OutputPlaceholder, InputPlaceholder}},
	}
	for _, c := range candidates {
		if r := NewCommandRasterizer(c.program, c.args...); r.available {
			return r
		}
	}
	return &CommandRasterizer{timeout: 60 * time.Second}
}

// Rasterize converts markup to PDF
func (r *CommandRasterizer) Rasterize(ctx context.Context, markup []byte) ([]byte, error) {
	if !r.available {
		return nil, fmt.Errorf("%w: no HTML to PDF converter found", ErrNotConfigured)
	}

	dir, err := os.MkdirTemp("", "facturx-render-*")
	if err != nil {
		return nil, fmt.Errorf("rasterize: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "invoice.html")
	output := filepath.Join(dir, "invoice.pdf")
	if err := os.WriteFile(input, markup, 0o600); err != nil {
		return nil, fmt.Errorf("rasterize: write markup: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := make([]string, len(r.args))
	for i, a := range r.args {
		a = strings.ReplaceAll(a, InputPlaceholder, input)
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, output)
	}
	cmd := exec.CommandContext(ctx, r.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("rasterize: %s failed: %w, stderr: %s", filepath.Base(r.path), err, strings.TrimSpace(stderr.String()))
	}

	pdf, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("rasterize: read output: %w", err)
	}
	if !bytes.HasPrefix(pdf, pdfMagic) {
		return nil, fmt.Errorf("rasterize: %s did not produce a PDF", filepath.Base(r.path))
	}
	return pdf, nil
}

// IsAvailable returns whether the converter was found
func (r *CommandRasterizer) IsAvailable() bool {
	return r.available
}

// Path returns the detected converter path
func (r *CommandRasterizer) Path() string {
	return r.path
}

// SetTimeout sets the execution timeout
func (r *CommandRasterizer) SetTimeout(d time.Duration) {
	r.timeout = d
}

// InstallInstructions explains how to get a converter
func InstallInstructions() string {
	return `An HTML to PDF converter is required to build invoices from templates.

Installation:
  - Ubuntu/Debian: sudo apt install wkhtmltopdf   (or chromium)
  - macOS:         brew install --cask wkhtmltopdf (or Google Chrome)
  - Fedora/RHEL:   sudo dnf install wkhtmltopdf

The converter must produce PDF/A-compatible output (embedded fonts) for the
result to pass PDF/A-3 validation.`
}
