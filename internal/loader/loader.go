// Package loader reads source documents from disk.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"syllabiq/internal/domain"
)

// Supported reports whether path has an extension the loader can read.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".md", ".markdown", ".txt":
		return true
	}
	return false
}

// Load reads a PDF, markdown or plain text file into a Document.
func Load(ctx context.Context, path string) (domain.Document, error) {
	doc := domain.Document{Filename: filepath.Base(path)}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		pages, err := readPDF(ctx, path)
		if err != nil {
			return doc, err
		}
		doc.Pages = pages
		doc.Content = strings.Join(pages, "\n\n")
	case ".md", ".markdown", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return doc, err
		}
		doc.Content = string(data)
	default:
		return doc, fmt.Errorf("unsupported file type: %s", path)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return doc, fmt.Errorf("no text found in %s", path)
	}
	return doc, nil
}

// readPDF returns the plain text of each page. Pages without text are kept
// as empty strings so page numbers stay aligned.
func readPDF(ctx context.Context, path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// Markdown renders a document as markdown with one "## Page N" section per
// page. Flat documents are returned unchanged.
func Markdown(doc domain.Document) string {
	if len(doc.Pages) == 0 {
		return doc.Content
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename)))
	for i, text := range doc.Pages {
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "\n## Page %d\n\n%s\n", i+1, text)
	}
	return b.String()
}
