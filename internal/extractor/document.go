package extractor

// OutputFormat is a serialization of a converted document.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
	FormatText     OutputFormat = "text"
	FormatHTML     OutputFormat = "html"
)

var outputFormats = []OutputFormat{FormatMarkdown, FormatJSON, FormatText, FormatHTML}

// SupportedOutputFormats returns the fixed list of export formats.
func SupportedOutputFormats() []OutputFormat {
	return append([]OutputFormat(nil), outputFormats...)
}

// ParseOutputFormat maps a request value onto an OutputFormat. An empty
// value selects markdown.
func ParseOutputFormat(s string) (OutputFormat, bool) {
	if s == "" {
		return FormatMarkdown, true
	}
	for _, f := range outputFormats {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

// BlockKind identifies the type of a content block.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockTable     BlockKind = "table"
	BlockImage     BlockKind = "image"
)

// Block is one structural element on a page. Rows is set for tables only.
type Block struct {
	Kind  BlockKind  `json:"kind"`
	Level int        `json:"level,omitempty"`
	Text  string     `json:"text,omitempty"`
	Rows  [][]string `json:"rows,omitempty"`
}

// Page groups the blocks of one physical page, slide or image.
type Page struct {
	Number int     `json:"page_no"`
	Blocks []Block `json:"blocks"`
}

func (p Page) count(kind BlockKind) int {
	n := 0
	for _, b := range p.Blocks {
		if b.Kind == kind {
			n++
		}
	}
	return n
}

// Tables is the number of table blocks on the page.
func (p Page) Tables() int { return p.count(BlockTable) }

// Images is the number of image blocks on the page.
func (p Page) Images() int { return p.count(BlockImage) }

// Document is the format-independent result of reading a file.
type Document struct {
	Name   string `json:"name"`
	Title  string `json:"title,omitempty"`
	Source string `json:"source_format"`
	Pages  []Page `json:"pages"`
}

// TablesCount sums tables over all pages.
func (d *Document) TablesCount() int {
	n := 0
	for _, p := range d.Pages {
		n += p.Tables()
	}
	return n
}

// ImagesCount sums images over all pages.
func (d *Document) ImagesCount() int {
	n := 0
	for _, p := range d.Pages {
		n += p.Images()
	}
	return n
}

// Metadata describes a converted document.
type Metadata struct {
	Title        string       `json:"title"`
	PageCount    int          `json:"page_count,omitempty"`
	FileSize     int64        `json:"file_size"`
	FileType     string       `json:"file_type"`
	TablesCount  int          `json:"tables_count"`
	ImagesCount  int          `json:"images_count"`
	OutputFormat OutputFormat `json:"output_format"`
}

// ParsedDocument is the exported content plus its metadata. Content is
// never empty when returned without error.
type ParsedDocument struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}
