package extractor

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// readPPTX reads each ppt/slides/slideN.xml part in slide order, one page
// per slide. Title placeholders become level-2 headings.
func readPPTX(path string) (*Document, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	type slidePart struct {
		num  int
		file *zip.File
	}
	var slides []slidePart
	for _, f := range zr.File {
		if m := slidePartRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slidePart{num: n, file: f})
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("no slides found in %s", filepath.Base(path))
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	doc := &Document{
		Name:   filepath.Base(path),
		Title:  coreTitle(path),
		Source: "pptx",
	}
	for i, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", s.file.Name, err)
		}
		blocks, err := parseSlide(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.file.Name, err)
		}
		doc.Pages = append(doc.Pages, Page{Number: i + 1, Blocks: blocks})
	}

	if doc.Title == "" && len(doc.Pages) > 0 {
		doc.Title = firstHeading(doc.Pages[0].Blocks)
	}
	return doc, nil
}

// parseSlide converts PresentationML shapes into blocks: p:sp text bodies,
// a:tbl graphic frames and p:pic pictures.
func parseSlide(r io.Reader) ([]Block, error) {
	dec := xml.NewDecoder(r)

	var (
		blocks     []Block
		para       strings.Builder
		shapeParas []string
		inShape    bool
		isTitle    bool
		inText     bool
		table      *tableBuilder
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				inShape = true
				isTitle = false
				shapeParas = nil
			case "ph":
				if typ := attr(t, "type"); typ == "title" || typ == "ctrTitle" {
					isTitle = true
				}
			case "tbl":
				table = &tableBuilder{}
			case "tr":
				if table != nil {
					table.startRow()
				}
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "br":
				para.WriteByte('\n')
			case "pic":
				blocks = append(blocks, Block{Kind: BlockImage})
			}

		case xml.CharData:
			if inText {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if text == "" {
					continue
				}
				if table != nil {
					table.addCellText(text)
				} else if inShape {
					shapeParas = append(shapeParas, text)
				}
			case "tc":
				if table != nil {
					table.endCell()
				}
			case "tbl":
				if table != nil && len(table.rows) > 0 {
					blocks = append(blocks, table.block())
				}
				table = nil
			case "sp":
				if isTitle && len(shapeParas) > 0 {
					blocks = append(blocks, Block{Kind: BlockHeading, Level: 2, Text: strings.Join(shapeParas, " ")})
				} else {
					for _, p := range shapeParas {
						blocks = append(blocks, Block{Kind: BlockParagraph, Text: p})
					}
				}
				inShape = false
				shapeParas = nil
			}
		}
	}
	return blocks, nil
}
