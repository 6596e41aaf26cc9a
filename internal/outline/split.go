package outline

import (
	"strings"
)

// OverlapMode selects how consecutive chunks share trailing context.
type OverlapMode string

const (
	// OverlapNone emits disjoint chunks.
	OverlapNone OverlapMode = "none"
	// OverlapChars repeats the tail of the previous chunk's content,
	// trimmed to a word boundary.
	OverlapChars OverlapMode = "chars"
	// OverlapBlock repeats the previous chunk's last block.
	OverlapBlock OverlapMode = "block"
)

// Chunk is one bounded slice of a document. Content starts with the
// re-emitted breadcrumb headers so the chunk stands on its own.
type Chunk struct {
	HeaderPath []string `json:"headerPath"`
	Content    string   `json:"content"`
	Size       int      `json:"size"`
}

// SplitConfig controls chunk packing.
type SplitConfig struct {
	// MaxSize bounds chunk size as measured by Size. A single block
	// larger than MaxSize still becomes one chunk.
	MaxSize int
	// Overlap is the tail length for OverlapChars, measured by Size.
	// Ignored for the other modes.
	Overlap int
	Mode    OverlapMode
	// Size measures content; defaults to CharCount.
	Size SizeFunc
}

// DefaultSplitConfig mirrors the service defaults.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{MaxSize: 1800, Mode: OverlapNone, Size: CharCount}
}

// Split packs the outline into ordered chunks. The walk is depth
// first and the open chunk carries across sections: a small section's
// header line rides inline ahead of its blocks, and the next section
// keeps filling the same chunk while it fits. A chunk that opens
// mid-document re-emits the breadcrumb headers above its first block.
// Blocks are atomic; one that exceeds MaxSize on its own is emitted
// oversized rather than cut. HeaderPath names the section where the
// chunk opens; sections merged in after that carry their headers
// inline in the content.
func Split(root *Node, cfg SplitConfig) []Chunk {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 1800
	}
	if cfg.Size == nil {
		cfg.Size = CharCount
	}
	if cfg.Mode == "" {
		cfg.Mode = OverlapNone
	}

	var items []item
	flatten(root, nil, &items)

	s := &splitter{cfg: cfg}
	s.pack(items)
	return s.chunks
}

type crumb struct {
	title string
	level int
}

// item is one packable piece of the flattened outline: a section's
// header line or one of its blocks.
type item struct {
	text   string
	crumbs []crumb
	header bool
}

// flatten serializes the tree depth first. A header item carries the
// path including itself, so a chunk opening at the section's first
// block re-emits it as part of the breadcrumb prefix.
func flatten(n *Node, crumbs []crumb, items *[]item) {
	cs := crumbs
	if n.Level > 0 {
		cs = make([]crumb, len(crumbs), len(crumbs)+1)
		copy(cs, crumbs)
		cs = append(cs, crumb{title: n.Title, level: n.Level})
		*items = append(*items, item{
			text:   strings.Repeat("#", n.Level) + " " + n.Title,
			crumbs: cs,
			header: true,
		})
	}
	for _, b := range n.Blocks {
		*items = append(*items, item{text: b.Text, crumbs: cs})
	}
	for _, c := range n.Children {
		flatten(c, cs, items)
	}
}

type splitter struct {
	cfg    SplitConfig
	chunks []Chunk

	// Open chunk state. cur never starts with a header item: the
	// breadcrumb prefix of the opening block covers it.
	cur    []item
	prefix string

	// Tail state of the last emitted chunk, for overlap.
	lastBody  string
	lastBlock string
}

// pack greedily fills the open chunk with consecutive items, carrying
// it across section boundaries while the next piece fits.
func (s *splitter) pack(items []item) {
	for _, it := range items {
		if it.header {
			// A header never opens a chunk; when one does not fit it
			// is dropped here and re-emitted by the breadcrumbs of
			// whichever chunk its blocks open.
			if len(s.cur) == 0 {
				continue
			}
			if s.sizeWith(it) > s.cfg.MaxSize {
				s.flush()
				continue
			}
			s.cur = append(s.cur, it)
			continue
		}

		if len(s.cur) > 0 && s.sizeWith(it) > s.cfg.MaxSize {
			s.flush()
		}
		if len(s.cur) == 0 {
			s.prefix = s.openPrefix(it.crumbs)
		}
		s.cur = append(s.cur, it)
		// An oversized block closes immediately so it cannot drag
		// neighbors over the bound with it.
		if s.cfg.Size(s.content()) > s.cfg.MaxSize {
			s.flush()
		}
	}
	s.flush()
}

func (s *splitter) sizeWith(it item) int {
	return s.cfg.Size(s.content() + "\n\n" + it.text)
}

func (s *splitter) content() string {
	parts := make([]string, 0, len(s.cur)+1)
	if s.prefix != "" {
		parts = append(parts, s.prefix)
	}
	for _, it := range s.cur {
		parts = append(parts, it.text)
	}
	return strings.Join(parts, "\n\n")
}

func (s *splitter) flush() {
	// Trailing headers move to the next chunk, where the breadcrumb
	// prefix re-emits them above their own blocks.
	for len(s.cur) > 0 && s.cur[len(s.cur)-1].header {
		s.cur = s.cur[:len(s.cur)-1]
	}
	if len(s.cur) == 0 {
		s.prefix = ""
		return
	}

	content := s.content()
	s.chunks = append(s.chunks, Chunk{
		HeaderPath: headerPath(s.cur[0].crumbs),
		Content:    content,
		Size:       s.cfg.Size(content),
	})

	var body []string
	for _, it := range s.cur {
		if it.header {
			continue
		}
		body = append(body, it.text)
		s.lastBlock = it.text
	}
	s.lastBody = strings.Join(body, "\n\n")
	s.cur = nil
	s.prefix = ""
}

// openPrefix builds the chunk opening: breadcrumb header lines, then
// the configured overlap from the previous chunk.
func (s *splitter) openPrefix(crumbs []crumb) string {
	var parts []string
	if bc := breadcrumbHeaders(crumbs); bc != "" {
		parts = append(parts, bc)
	}
	if ov := s.overlap(); ov != "" {
		parts = append(parts, ov)
	}
	return strings.Join(parts, "\n\n")
}

func (s *splitter) overlap() string {
	switch s.cfg.Mode {
	case OverlapBlock:
		return s.lastBlock
	case OverlapChars:
		if s.cfg.Overlap <= 0 || s.lastBody == "" {
			return ""
		}
		return tailWords(s.lastBody, s.cfg.Overlap, s.cfg.Size)
	}
	return ""
}

// tailWords returns the shortest word-aligned suffix of text measuring
// at least want, or the whole text when it is smaller than that.
func tailWords(text string, want int, size SizeFunc) string {
	if size(text) <= want {
		return text
	}
	words := strings.Fields(text)
	tail := ""
	for i := len(words) - 1; i >= 0; i-- {
		tail = strings.Join(words[i:], " ")
		if size(tail) >= want {
			break
		}
	}
	return tail
}

// breadcrumbHeaders re-emits the ancestor headers as ATX lines, the
// way the source wrote them.
func breadcrumbHeaders(crumbs []crumb) string {
	if len(crumbs) == 0 {
		return ""
	}
	lines := make([]string, len(crumbs))
	for i, c := range crumbs {
		lines[i] = strings.Repeat("#", c.level) + " " + c.title
	}
	return strings.Join(lines, "\n")
}

func headerPath(crumbs []crumb) []string {
	if len(crumbs) == 0 {
		return nil
	}
	path := make([]string, len(crumbs))
	for i, c := range crumbs {
		path[i] = c.title
	}
	return path
}
