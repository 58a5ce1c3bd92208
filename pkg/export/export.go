package export

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format identifies a report encoding.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Notes   []string
	Headers []string
	Rows    []map[string]string
}

// Renderer turns a dataset into encoded bytes.
type Renderer interface {
	Render(data Dataset) ([]byte, error)
}

// FormatFromPath infers the report format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case string(FormatCSV):
		return FormatCSV, nil
	case string(FormatPDF):
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported report extension %q (want .csv or .pdf)", filepath.Ext(path))
	}
}

// RendererFor returns the renderer for the format.
func RendererFor(format Format) (Renderer, error) {
	switch format {
	case FormatCSV:
		return NewCSVExporter(), nil
	case FormatPDF:
		return NewPDFExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}
