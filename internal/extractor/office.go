package extractor

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"strings"
)

// coreTitle reads dc:title from docProps/core.xml of an OOXML package.
// Missing parts yield "".
func coreTitle(path string) string {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return ""
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "docProps/core.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		defer rc.Close()
		return xmlElementText(rc, "title")
	}
	return ""
}

// xmlElementText returns the trimmed text of the first element with the
// given local name.
func xmlElementText(r io.Reader, local string) string {
	dec := xml.NewDecoder(r)
	inside := false
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return strings.TrimSpace(sb.String())
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == local {
				inside = true
			}
		case xml.CharData:
			if inside {
				sb.Write(t)
			}
		case xml.EndElement:
			if inside && t.Name.Local == local {
				return strings.TrimSpace(sb.String())
			}
		}
	}
}

func attr(se xml.StartElement, local string) string {
	for _, a := range se.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingLevel maps a paragraph style name to a heading level, 0 for body.
// "Heading1" -> 1, "Title" -> 1, "Subtitle" -> 2.
func headingLevel(style string) int {
	lower := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	switch lower {
	case "title":
		return 1
	case "subtitle":
		return 2
	}
	for _, prefix := range []string{"heading", "titre", "überschrift"} {
		if strings.HasPrefix(lower, prefix) {
			rest := lower[len(prefix):]
			if len(rest) == 1 && rest[0] >= '1' && rest[0] <= '6' {
				return int(rest[0] - '0')
			}
		}
	}
	return 0
}

// tableBuilder accumulates rows and cells while walking table XML.
type tableBuilder struct {
	rows [][]string
	cell []string
}

func (t *tableBuilder) startRow() { t.rows = append(t.rows, nil) }
func (t *tableBuilder) addCellText(s string) { t.cell = append(t.cell, s) }

func (t *tableBuilder) endCell() {
	if len(t.rows) == 0 {
		t.startRow()
	}
	last := len(t.rows) - 1
	t.rows[last] = append(t.rows[last], strings.Join(t.cell, " "))
	t.cell = nil
}

func (t *tableBuilder) block() Block {
	return Block{Kind: BlockTable, Rows: t.rows}
}
