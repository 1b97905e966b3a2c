package ingest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	rpdf "rsc.io/pdf"
)

// readDocument drains a fetched document. PDF bodies are converted to
// plain text and returned without a DOM; HTML bodies come back parsed.
func readDocument(doc *FetchedDocument) (*goquery.Document, string, error) {
	defer doc.Body.Close()
	body, err := io.ReadAll(doc.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", doc.URL, err)
	}

	if isPDF(doc.ContentType, body) {
		text, err := extractPDFText(body)
		if err != nil {
			return nil, "", fmt.Errorf("pdf %s: %w", doc.URL, err)
		}
		return nil, normalizeSpace(text), nil
	}

	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("parse html %s: %w", doc.URL, err)
	}
	return dom, normalizeSpace(dom.Text()), nil
}

func isPDF(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	return http.DetectContentType(body) == "application/pdf"
}

// extractPDFText concatenates the text fragments of every page. rsc.io/pdf
// panics on some malformed files, so panics become errors.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			b.WriteString(fragment.S)
			b.WriteString(" ")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
