package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"strings"

	"github.com/poiesic/mmrag/core"
)

// Parsed is the output of a Parser: the document's content elements in
// reading order and its page count.
type Parsed struct {
	Elements  []core.ContentElement
	PageCount int
}

// Parser turns an uploaded file into content elements.
type Parser interface {
	Parse(ctx context.Context, name string, data []byte) (*Parsed, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, name string, data []byte) (*Parsed, error)

// Parse calls f.
func (f ParserFunc) Parse(ctx context.Context, name string, data []byte) (*Parsed, error) {
	return f(ctx, name, data)
}

func defaultParsers() map[string]Parser {
	text := TextParser{}
	return map[string]Parser{
		".json": ElementsParser{},
		".txt":  text,
		".md":   text,
	}
}

func extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// ElementsParser reads the output of an external partitioner: a JSON array
// of content elements, or an object with "page_count" and "elements".
// Image bytes are base64 in JSON. Empty elements are dropped.
type ElementsParser struct{}

type elementsFile struct {
	PageCount int                   `json:"page_count"`
	Elements  []core.ContentElement `json:"elements"`
}

// Parse decodes and validates the elements.
func (ElementsParser) Parse(_ context.Context, name string, data []byte) (*Parsed, error) {
	var file elementsFile
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &file.Elements); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", name, err)
		}
	} else if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}

	parsed := &Parsed{PageCount: file.PageCount}
	for i := range file.Elements {
		el := file.Elements[i]
		if el.Source == "" {
			el.Source = name
		}
		if err := core.ValidateElement(&el); err != nil {
			if errors.Is(err, core.ErrEmptyContent) {
				continue
			}
			return nil, fmt.Errorf("element %d of %s: %w", i, name, err)
		}
		parsed.PageCount = max(parsed.PageCount, el.Page())
		parsed.Elements = append(parsed.Elements, el)
	}
	return parsed, nil
}

// TextParser splits plain text or markdown into elements. Form feeds
// separate pages and blank lines separate blocks. A block whose lines all
// start with '|' is read as a pipe table.
type TextParser struct{}

// Parse splits data into text and table elements.
func (TextParser) Parse(_ context.Context, name string, data []byte) (*Parsed, error) {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	pages := strings.Split(content, "\f")

	parsed := &Parsed{}
	for i, page := range pages {
		pageNum := i + 1
		for _, block := range strings.Split(page, "\n\n") {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			el := core.ContentElement{
				Type:       core.ElementText,
				Text:       block,
				PageNumber: core.PageRef(pageNum),
				Source:     name,
			}
			if isPipeTable(block) {
				el.Type = core.ElementTable
				el.TableHTML = pipeTableHTML(block)
			}
			parsed.Elements = append(parsed.Elements, el)
		}
		if strings.TrimSpace(page) != "" {
			parsed.PageCount = pageNum
		}
	}
	return parsed, nil
}

func isPipeTable(block string) bool {
	lines := strings.Split(block, "\n")
	if len(lines) < 2 {
		return false
	}
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "|") {
			return false
		}
	}
	return true
}

func pipeTableHTML(block string) string {
	var b strings.Builder
	b.WriteString("<table>")
	header := true
	for _, line := range strings.Split(block, "\n") {
		cells := splitCells(line)
		if isSeparatorRow(cells) {
			continue
		}
		tag := "td"
		if header {
			tag = "th"
		}
		b.WriteString("<tr>")
		for _, cell := range cells {
			fmt.Fprintf(&b, "<%s>%s</%s>", tag, html.EscapeString(cell), tag)
		}
		b.WriteString("</tr>")
		header = false
	}
	b.WriteString("</table>")
	return b.String()
}

func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	cells := strings.Split(line, "|")
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		if strings.Trim(c, "-: ") != "" {
			return false
		}
	}
	return true
}
