package resume

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// TextExtensions are the resume file types LoadText understands, in the
// order the data folder is searched.
var TextExtensions = []string{".txt", ".pdf", ".html", ".htm"}

var spaces = regexp.MustCompile(`[ \t]+`)

// LoadText returns the plain text of the resume at path, picking the reader
// by file extension.
func LoadText(path string) (string, error) {
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", "":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	case ".pdf":
		text, err = pdfText(path)
	case ".html", ".htm":
		text, err = htmlText(path)
	default:
		return "", fmt.Errorf("unsupported resume format %q", filepath.Ext(path))
	}
	if err != nil {
		return "", fmt.Errorf("reading resume %s: %w", path, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("resume %s has no text", path)
	}
	return text, nil
}

func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rd); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func htmlText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	collectText(doc, &sb)

	var lines []string
	for _, line := range strings.Split(sb.String(), "\n") {
		line = strings.TrimSpace(spaces.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// blockElements end a line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "ul": true, "ol": true, "table": true,
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "head", "svg":
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		sb.WriteString("\n")
	}
}
