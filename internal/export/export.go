package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/internal/storage/models"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

const DefaultFilenamePrefix = "email_report"

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrEmptySnapshot     = errors.New("nothing to export")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
)

// Formats lists every accepted format.
func Formats() []Format {
	return []Format{FormatJSON, FormatCSV, FormatTXT, FormatHTML, FormatPDF}
}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

type Options struct {
	// GeneratedAt is the only time value written into an artifact.
	GeneratedAt    time.Time
	FilenamePrefix string
}

// Artifact is a rendered report ready to be served or written.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
	// Fallback is set when the requested format was served as HTML.
	Fallback bool
}

// Export renders snap in format. Output depends only on its arguments.
func Export(format Format, snap *models.Snapshot, opts Options) (*Artifact, error) {
	if err := validate(snap); err != nil {
		metrics.ExportsTotal.WithLabelValues(string(format), "invalid").Inc()
		return nil, err
	}
	if opts.GeneratedAt.IsZero() {
		opts.GeneratedAt = time.Now()
	}
	opts.GeneratedAt = opts.GeneratedAt.UTC()

	v := newView(snap, opts.GeneratedAt)

	var (
		data     []byte
		err      error
		ext      = string(format)
		ctype    string
		fallback bool
	)
	switch format {
	case FormatJSON:
		data, err = renderJSON(snap, opts.GeneratedAt)
		ctype = "application/json"
	case FormatCSV:
		data, err = renderCSV(v)
		ctype = "text/csv; charset=utf-8"
	case FormatTXT:
		data = renderText(v)
		ctype = "text/plain; charset=utf-8"
	case FormatHTML:
		data, err = renderHTML(v)
		ctype = "text/html; charset=utf-8"
	case FormatPDF:
		// No PDF renderer; the HTML document is print-ready.
		data, err = renderHTML(v)
		ctype = "text/html; charset=utf-8"
		ext = string(FormatHTML)
		fallback = true
	default:
		metrics.ExportsTotal.WithLabelValues("unknown", "unsupported").Inc()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
	if err != nil {
		metrics.ExportsTotal.WithLabelValues(string(format), "error").Inc()
		return nil, fmt.Errorf("failed to render %s export: %w", format, err)
	}

	metrics.ExportsTotal.WithLabelValues(string(format), "ok").Inc()
	return &Artifact{
		Filename:    Filename(opts.FilenamePrefix, ext, opts.GeneratedAt),
		ContentType: ctype,
		Data:        data,
		Fallback:    fallback,
	}, nil
}

// Filename builds prefix_YYYY-MM-DD_HH_MM_SS.ext from t in UTC.
func Filename(prefix, ext string, t time.Time) string {
	if prefix == "" {
		prefix = DefaultFilenamePrefix
	}
	return fmt.Sprintf("%s_%s.%s", prefix, t.UTC().Format("2006-01-02_15_04_05"), ext)
}

// WriteTo writes the artifact into dir and returns its path. The file
// appears only once fully written.
func (a *Artifact) WriteTo(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+a.Filename+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(a.Data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close export: %w", err)
	}

	path := filepath.Join(dir, a.Filename)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to move export into place: %w", err)
	}

	logger.Info("Export written", zap.String("path", path), zap.Int("bytes", len(a.Data)))
	return path, nil
}

func validate(snap *models.Snapshot) error {
	if snap == nil || len(snap.AnalyzedEmails) == 0 {
		return ErrEmptySnapshot
	}
	for i, e := range snap.AnalyzedEmails {
		if e.ID == "" {
			return fmt.Errorf("%w: analyzed email %d has no id", ErrInvalidSnapshot, i)
		}
	}
	return nil
}
