package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

type format int

const (
	formatUnknown format = iota
	formatPlain
	formatHTML
	formatDocx
)

func formatForExt(ext string) format {
	switch strings.ToLower(ext) {
	case ".txt", ".text", ".md", ".markdown", ".csv", ".log", ".json", ".xml":
		return formatPlain
	case ".html", ".htm", ".xhtml":
		return formatHTML
	case ".docx":
		return formatDocx
	default:
		return formatUnknown
	}
}

func formatForMediaType(mt string) format {
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return formatHTML
	case strings.HasPrefix(mt, "text/"):
		return formatPlain
	case mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return formatDocx
	default:
		return formatUnknown
	}
}

func convert(f format, data []byte) (string, error) {
	switch f {
	case formatPlain:
		return plainText(data), nil
	case formatHTML:
		return stripHTML(plainText(data)), nil
	case formatDocx:
		return docxText(data)
	default:
		return "", ErrUnsupported
	}
}

func plainText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "")
	}
	return string(data)
}

var (
	dropElements = regexp.MustCompile(`(?is)<(script|style|noscript|head|svg)[^>]*>.*?</(script|style|noscript|head|svg)>`)
	htmlComments = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockTags    = regexp.MustCompile(`(?i)</?(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|section|article)[^>]*>`)
	allTags      = regexp.MustCompile(`<[^>]+>`)
	multiSpaces  = regexp.MustCompile(`[ \t]+`)
)

// stripHTML reduces markup to its visible text, one block per line.
func stripHTML(content string) string {
	content = dropElements.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")
	content = blockTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

type docxDocument struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

// docxText returns the paragraphs of word/document.xml, one per line.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, file := range zr.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}

		var doc docxDocument
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		var b strings.Builder
		for i, p := range doc.Body.Paragraphs {
			if i > 0 {
				b.WriteString("\n")
			}
			for _, r := range p.Runs {
				for _, t := range r.Text {
					b.WriteString(t.Content)
				}
			}
		}
		return strings.TrimSpace(b.String()), nil
	}
	return "", nil
}
