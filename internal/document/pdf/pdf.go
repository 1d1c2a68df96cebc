// Package pdf adapts a PDF file to the document.Source interface.
package pdf

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"

	"github.com/planify-ai/ragserver/internal/document"
)

// Source reads pages and embedded images from a PDF file.
type Source struct {
	file   *os.File
	reader *pdf.Reader
}

// Open opens the PDF at path. This is the only step whose failure aborts a
// whole ingestion run.
func Open(path string) (*Source, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &Source{file: file, reader: reader}, nil
}

func (s *Source) PageCount() int {
	return s.reader.NumPage()
}

// Page extracts the native text and raw embedded image streams of the
// 1-based page.
func (s *Source) Page(ctx context.Context, number int) (*document.RawPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := s.reader.Page(number)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", number)
	}

	text, err := pageText(page)
	if err != nil {
		return nil, fmt.Errorf("page %d text: %w", number, err)
	}

	// Image extraction is best effort: a stream we cannot decode is simply
	// absent from the result, the same degradation as a failed OCR pass.
	return &document.RawPage{Text: text, Images: pageImages(page)}, nil
}

func (s *Source) Close() error {
	return s.file.Close()
}

// pageText extracts the plain text of a page. The underlying library panics
// on malformed content streams, so the panic is converted to a per-page error.
func pageText(page pdf.Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract text: %v", r)
		}
	}()
	return page.GetPlainText(nil)
}

// pageImages collects the decoded bytes of every image XObject on the page.
// Streams with filters the library does not implement are skipped.
func pageImages(page pdf.Page) [][]byte {
	resources := page.V.Key("Resources")
	xobjects := resources.Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return nil
	}

	var images [][]byte
	for _, name := range xobjects.Keys() {
		obj := xobjects.Key(name)
		if obj.Kind() != pdf.Stream {
			continue
		}
		if obj.Key("Subtype").Name() != "Image" {
			continue
		}
		data, err := readStream(obj)
		if err != nil || len(data) == 0 {
			continue
		}
		images = append(images, data)
	}
	return images
}

// readStream decodes an image stream. The library panics on unsupported
// stream filters; treat that as a per-image decode failure.
func readStream(obj pdf.Value) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("decode image stream: %v", r)
		}
	}()
	return io.ReadAll(obj.Reader())
}
