package extractor

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// readDOCX loads word/document.xml through nguyenthenguyen/docx and walks it
// into headings, paragraphs, tables and image placeholders. DOCX has no
// physical pages, so everything lands on page 1.
func readDOCX(path string) (*Document, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read docx: %w", err)
	}
	defer r.Close()

	blocks, err := parseDOCXBody(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Name:   filepath.Base(path),
		Title:  coreTitle(path),
		Source: "docx",
		Pages:  []Page{{Number: 1, Blocks: blocks}},
	}
	if doc.Title == "" {
		doc.Title = firstHeading(blocks)
	}
	return doc, nil
}

// parseDOCXBody converts WordprocessingML into blocks. Only top-level
// tables become table blocks; nested tables are flattened into the
// enclosing cell.
func parseDOCXBody(content string) ([]Block, error) {
	dec := xml.NewDecoder(strings.NewReader(content))

	var (
		blocks     []Block
		para       strings.Builder
		style      string
		inRun      bool
		inText     bool
		fallback   int // depth inside mc:Fallback, which duplicates mc:Choice
		images     int
		tableDepth int
		table      *tableBuilder
	)

	flushImages := func() {
		for ; images > 0; images-- {
			blocks = append(blocks, Block{Kind: BlockImage})
		}
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "Fallback" || fallback > 0 {
				fallback++
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tableDepth++
				if tableDepth == 1 {
					table = &tableBuilder{}
				}
			case "tr":
				if tableDepth == 1 {
					table.startRow()
				}
			case "p":
				para.Reset()
				style = ""
			case "pStyle":
				style = attr(t, "val")
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				if inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					para.WriteByte('\n')
				}
			case "drawing", "pict":
				images++
			}

		case xml.CharData:
			if inText && fallback == 0 {
				para.Write(t)
			}

		case xml.EndElement:
			if fallback > 0 {
				fallback--
				continue
			}
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if tableDepth > 0 {
					if text != "" {
						table.addCellText(text)
					}
					continue
				}
				if text != "" {
					if level := headingLevel(style); level > 0 {
						blocks = append(blocks, Block{Kind: BlockHeading, Level: level, Text: text})
					} else {
						blocks = append(blocks, Block{Kind: BlockParagraph, Text: text})
					}
				}
				flushImages()
			case "tc":
				if tableDepth == 1 {
					table.endCell()
				}
			case "tbl":
				tableDepth--
				if tableDepth == 0 && table != nil {
					if len(table.rows) > 0 {
						blocks = append(blocks, table.block())
					}
					table = nil
					flushImages()
				}
			case "body":
				flushImages()
			}
		}
	}
	flushImages()
	return blocks, nil
}

func firstHeading(blocks []Block) string {
	for _, b := range blocks {
		if b.Kind == BlockHeading {
			return b.Text
		}
	}
	return ""
}
