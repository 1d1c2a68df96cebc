// Package document turns a source document into per-page text records,
// folding in text recognized from embedded images.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Page is one page of the source document: native text plus any OCR text,
// immutable once produced.
type Page struct {
	Text      string
	Number    int // 1-based
	HasImages bool
	Source    string
}

// RawPage is what a Source yields before OCR: native text and the raw bytes
// of each embedded image, in page order.
type RawPage struct {
	Text   string
	Images [][]byte
}

// Source provides per-page access to an opened document.
type Source interface {
	PageCount() int
	// Page returns the 1-based page. Errors are per-page: the loader skips
	// the page and keeps going.
	Page(ctx context.Context, number int) (*RawPage, error)
	Close() error
}

// Recognizer runs optical character recognition on one image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// PageOutcome records what happened to one page during loading.
type PageOutcome struct {
	Page         int
	Skipped      bool
	Reason       string
	Images       int
	ImagesFailed int
}

// Report is the per-item account of a load: every page appears exactly once,
// as loaded or skipped-with-reason. Degraded ingestion is an output here,
// not a silent condition.
type Report struct {
	Source   string
	Outcomes []PageOutcome
}

// Loaded returns the number of successfully processed pages.
func (r *Report) Loaded() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Skipped {
			n++
		}
	}
	return n
}

// SkippedPages returns the number of pages dropped from the run.
func (r *Report) SkippedPages() int {
	return len(r.Outcomes) - r.Loaded()
}

// FailedImages returns the total count of images whose recognition failed.
func (r *Report) FailedImages() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.ImagesFailed
	}
	return n
}

// Loader produces Pages from a Source, running OCR on embedded images.
type Loader struct {
	recognizer Recognizer
	logger     *slog.Logger
}

// NewLoader creates a Loader. recognizer may be nil, in which case images
// only set the has-images flag and contribute no text.
func NewLoader(recognizer Recognizer, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{recognizer: recognizer, logger: logger}
}

// Load walks every page of src in order. A failing page is logged and
// skipped; a failing image is logged and omitted from its page. Load itself
// fails only on context cancellation; opening the document is the caller's
// step and the only whole-run failure mode.
func (l *Loader) Load(ctx context.Context, src Source, sourcePath string) ([]Page, *Report, error) {
	report := &Report{Source: sourcePath}
	var pages []Page

	count := src.PageCount()
	for number := 1; number <= count; number++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		raw, err := src.Page(ctx, number)
		if err != nil {
			l.logger.Warn("skipping page", "page", number, "source", sourcePath, "error", err)
			report.Outcomes = append(report.Outcomes, PageOutcome{
				Page:    number,
				Skipped: true,
				Reason:  err.Error(),
			})
			continue
		}

		text, failed := l.appendImageText(ctx, raw, number, sourcePath)
		pages = append(pages, Page{
			Text:      text,
			Number:    number,
			HasImages: len(raw.Images) > 0,
			Source:    sourcePath,
		})
		report.Outcomes = append(report.Outcomes, PageOutcome{
			Page:         number,
			Images:       len(raw.Images),
			ImagesFailed: failed,
		})
	}

	l.logger.Info("processed pages with OCR", "pages", report.Loaded(), "skipped", report.SkippedPages(), "source", sourcePath)
	return pages, report, nil
}

// appendImageText tags each image's recognized text with its 1-based index so
// multiple images per page stay distinguishable.
func (l *Loader) appendImageText(ctx context.Context, raw *RawPage, number int, sourcePath string) (string, int) {
	var b strings.Builder
	b.WriteString(raw.Text)

	failed := 0
	for i, img := range raw.Images {
		if l.recognizer == nil {
			break
		}
		ocrText, err := l.recognizer.Recognize(ctx, img)
		if err != nil {
			failed++
			l.logger.Warn("OCR failed", "page", number, "image", i+1, "source", sourcePath, "error", err)
			continue
		}
		fmt.Fprintf(&b, "\n[IMAGE %d TEXT]: %s", i+1, ocrText)
	}
	return b.String(), failed
}
