// Package pdftext extracts plain text from PDF payloads via MuPDF
// (go-fitz), with pdfcpu providing the page count for job stats.
package pdftext

import (
	"fmt"
	"os"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// ExtractBytes writes the payload to a temp file, pulls the text of
// every page and returns it with the page count. The temp file is
// always removed.
func ExtractBytes(data []byte) (string, int, error) {
	f, err := os.CreateTemp("", "combodl-*.pdf")
	if err != nil {
		return "", 0, fmt.Errorf("temp pdf: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", 0, fmt.Errorf("write temp pdf: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("close temp pdf: %w", err)
	}

	pages, err := api.PageCountFile(tmp)
	if err != nil {
		// go-fitz can still open files pdfcpu chokes on.
		log.Debug().Err(err).Msg("pdfcpu page count failed; continuing with fitz")
		pages = 0
	}

	text, err := extractAll(tmp)
	if err != nil {
		return "", pages, err
	}
	if pages == 0 {
		pages = strings.Count(text, "\f") + 1
	}
	return text, pages, nil
}

func extractAll(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var b strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("failed to extract page text")
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	return b.String(), nil
}
