package chunker

import (
	"strings"

	"github.com/scholar-rag/backend/internal/storage/models"
)

// Sizes holds the window size and overlap for one source role.
type Sizes struct {
	Size    int
	Overlap int
}

// Defaults returns the per-role chunking parameters. Thesis chapters
// carry longer argumentative passages, so they get a wider window.
func Defaults() map[models.SourceRole]Sizes {
	return map[models.SourceRole]Sizes{
		models.RolePublication: {Size: 900, Overlap: 140},
		models.RoleThesis:      {Size: 1200, Overlap: 180},
		models.RoleWeb:         {Size: 900, Overlap: 150},
		models.RoleOther:       {Size: 900, Overlap: 150},
	}
}

// ForRole picks the configured sizes for a role, falling back to the
// web/other default when the role has no entry.
func ForRole(cfg map[models.SourceRole]Sizes, role models.SourceRole) Sizes {
	if s, ok := cfg[role]; ok && s.Size > 0 {
		return s
	}
	return Sizes{Size: 900, Overlap: 150}
}

// Chunk splits text into overlapping character windows. Line endings
// are normalized and each window is trimmed; empty windows are dropped.
// The final window always reaches the end of the text. Empty input
// yields no chunks.
func Chunk(text string, size, overlap int) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if size <= 0 {
		size = 900
	}
	step := size - overlap
	if step < 1 {
		step = 1
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
	}

	return chunks
}
