package chunker

import "strings"

const (
	// DefaultMaxLines is the hard upper bound on chunk length.
	DefaultMaxLines = 50
	// DefaultMinLines is the minimum buffered length before a definition
	// line is allowed to close a chunk.
	DefaultMinLines = 10
)

// ChunkTypeCodeBlock is the chunk_type value stored for every chunk.
const ChunkTypeCodeBlock = "code_block"

// CodeChunk is one contiguous, line-bounded slice of a source file, the unit
// of indexing and retrieval.
type CodeChunk struct {
	ProjectID string
	FilePath  string
	ChunkType string
	StartLine int // 1-indexed, inclusive
	EndLine   int // inclusive
	Text      string
}

// Chunker splits file content into ordered, non-overlapping chunks. Chunks
// for a file are contiguous and gapless: joining their texts with "\n"
// reconstructs the original content exactly.
type Chunker struct {
	MaxLines int
	MinLines int
}

// New returns a Chunker with the default thresholds.
func New() *Chunker {
	return &Chunker{MaxLines: DefaultMaxLines, MinLines: DefaultMinLines}
}

// Chunk splits content into chunks. Lines accumulate into a buffer; the
// buffer is flushed once it reaches MaxLines, or when the current line opens
// a top-level definition and the buffer has already grown past MinLines —
// biasing splits toward semantic boundaries without producing one-line
// chunks at every definition. The definition line stays in the chunk it
// closes. Whatever remains at end of input is flushed as a final chunk.
func (c *Chunker) Chunk(content, filePath string) []CodeChunk {
	if content == "" {
		return nil
	}

	maxLines := c.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	minLines := c.MinLines
	if minLines <= 0 {
		minLines = DefaultMinLines
	}

	lines := strings.Split(content, "\n")

	var chunks []CodeChunk
	var buf []string
	start := 1

	for i, line := range lines {
		buf = append(buf, line)

		if len(buf) >= maxLines || (opensDefinition(line) && len(buf) > minLines) {
			chunks = append(chunks, CodeChunk{
				FilePath:  filePath,
				ChunkType: ChunkTypeCodeBlock,
				StartLine: start,
				EndLine:   i + 1,
				Text:      strings.Join(buf, "\n"),
			})
			buf = nil
			start = i + 2
		}
	}

	if len(buf) > 0 {
		chunks = append(chunks, CodeChunk{
			FilePath:  filePath,
			ChunkType: ChunkTypeCodeBlock,
			StartLine: start,
			EndLine:   len(lines),
			Text:      strings.Join(buf, "\n"),
		})
	}

	return chunks
}

// definitionPrefixes cover function- and class-like constructs across the
// languages the walker admits.
var definitionPrefixes = []string{
	"func ",
	"def ",
	"async def ",
	"class ",
	"function ",
	"fn ",
	"pub fn ",
	"export function ",
	"export default function ",
}

// opensDefinition reports whether line begins a new top-level definition.
// Indented lines never count as boundaries.
func opensDefinition(line string) bool {
	if line == "" || line[0] == ' ' || line[0] == '\t' {
		return false
	}
	for _, prefix := range definitionPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
