package chunker

import (
	"fmt"
	"regexp"
	"strings"

	"syllabiq/internal/domain"
)

// Counter measures text length in tokens.
type Counter interface {
	Count(text string) int
}

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	listPattern    = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	fencePattern   = regexp.MustCompile("^\\s*(```|~~~)")
)

type block struct {
	kind domain.ChunkType
	text string
}

type section struct {
	path   []string
	blocks []block
}

// HybridChunker splits markdown into structural blocks, merges consecutive
// blocks of a section up to a token budget and prefixes every chunk with its
// heading path. Blocks larger than the budget are split on sentences.
type HybridChunker struct {
	maxTokens int
	counter   Counter
}

var _ domain.Chunker = (*HybridChunker)(nil)

func NewHybridChunker(maxTokens int, counter Counter) *HybridChunker {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &HybridChunker{maxTokens: maxTokens, counter: counter}
}

func (c *HybridChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var sections []section
	if len(document.Pages) > 0 {
		for i, page := range document.Pages {
			if strings.TrimSpace(page) == "" {
				continue
			}
			sec := section{path: []string{fmt.Sprintf("Page %d", i+1)}}
			for _, s := range parse(page) {
				for _, b := range s.blocks {
					if b.kind == domain.ChunkParagraph {
						b.kind = domain.ChunkPage
					}
					sec.blocks = append(sec.blocks, b)
				}
			}
			sections = append(sections, sec)
		}
	} else {
		sections = parse(document.Content)
	}

	var chunks []domain.Chunk
	emit := func(path []string, kind domain.ChunkType, body string) {
		chunks = append(chunks, domain.Chunk{
			Text:     contextualize(path, body),
			Filename: document.Filename,
			Index:    len(chunks),
			Type:     kind,
		})
	}

	for _, sec := range sections {
		if len(sec.blocks) == 0 {
			if len(sec.path) > 0 {
				emit(sec.path[:len(sec.path)-1], domain.ChunkHeading, sec.path[len(sec.path)-1])
			}
			continue
		}
		budget := c.maxTokens - c.counter.Count(strings.Join(sec.path, " > "))
		if budget < c.maxTokens/4 {
			budget = c.maxTokens / 4
		}

		var parts []string
		var kind domain.ChunkType
		flush := func() {
			if len(parts) > 0 {
				emit(sec.path, kind, strings.Join(parts, "\n\n"))
			}
			parts, kind = nil, ""
		}
		for _, b := range sec.blocks {
			if c.counter.Count(b.text) > budget {
				flush()
				for _, piece := range c.split(b.text, budget) {
					emit(sec.path, b.kind, piece)
				}
				continue
			}
			if len(parts) > 0 && c.counter.Count(strings.Join(append(parts, b.text), "\n\n")) > budget {
				flush()
			}
			parts = append(parts, b.text)
			switch kind {
			case "":
				kind = b.kind
			case b.kind:
			default:
				kind = domain.ChunkParagraph
			}
		}
		flush()
	}
	return chunks, nil
}

// split groups sentences under budget. A single sentence longer than the
// budget becomes its own piece.
func (c *HybridChunker) split(text string, budget int) []string {
	var out []string
	var cur []string
	for _, s := range splitSentences(text) {
		if len(cur) > 0 && c.counter.Count(strings.Join(append(cur, s), " ")) > budget {
			out = append(out, strings.Join(cur, " "))
			cur = nil
		}
		cur = append(cur, s)
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, " "))
	}
	return out
}

func contextualize(path []string, body string) string {
	if len(path) == 0 {
		return body
	}
	return strings.Join(path, " > ") + "\n" + body
}

// parse splits markdown into sections keyed by heading path.
func parse(text string) []section {
	var (
		sections []section
		path     []string
		levels   []int
		cur      = section{}
		buf      []string
		bufKind  domain.ChunkType
		fence    string
	)
	flushBlock := func() {
		if len(buf) > 0 {
			if t := strings.TrimSpace(strings.Join(buf, "\n")); t != "" {
				cur.blocks = append(cur.blocks, block{kind: bufKind, text: t})
			}
		}
		buf, bufKind = nil, ""
	}
	flushSection := func() {
		flushBlock()
		if len(cur.blocks) > 0 || len(cur.path) > 0 {
			sections = append(sections, cur)
		}
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if fence != "" {
			buf = append(buf, line)
			if strings.HasPrefix(strings.TrimSpace(line), fence) {
				flushBlock()
				fence = ""
			}
			continue
		}
		if m := fencePattern.FindStringSubmatch(line); m != nil {
			flushBlock()
			fence = m[1]
			bufKind = domain.ChunkCode
			buf = append(buf, line)
			continue
		}
		if m := headingPattern.FindStringSubmatch(line); m != nil {
			flushSection()
			level := len(m[1])
			for len(levels) > 0 && levels[len(levels)-1] >= level {
				levels = levels[:len(levels)-1]
				path = path[:len(path)-1]
			}
			levels = append(levels, level)
			path = append(path, strings.TrimSpace(m[2]))
			cur = section{path: append([]string(nil), path...)}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flushBlock()
			continue
		}
		kind := domain.ChunkParagraph
		switch {
		case strings.HasPrefix(trimmed, "|"):
			kind = domain.ChunkTable
		case listPattern.MatchString(line):
			kind = domain.ChunkList
		case bufKind == domain.ChunkList && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")):
			kind = domain.ChunkList
		}
		if bufKind != "" && bufKind != kind {
			flushBlock()
		}
		bufKind = kind
		buf = append(buf, line)
	}
	if fence != "" {
		flushBlock()
	}
	flushSection()
	return sections
}
