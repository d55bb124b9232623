package textutil

import (
	"crypto/md5"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// NormalizeContent lowercases text and collapses runs of whitespace so
// that cosmetic formatting differences hash identically.
func NormalizeContent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// HashContent returns the hash used for exact-duplicate detection. Two
// chunks with the same normalized content always share a hash.
func HashContent(s string) string {
	sum := md5.Sum([]byte(NormalizeContent(s)))
	return fmt.Sprintf("%x", sum)
}

// NormalizeKey reduces a title or file name to a lowercase alphanumeric
// key: non-alphanumeric runs become single spaces. Used for paper keys
// and alias matching.
func NormalizeKey(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// FileStem strips any directory prefix and the final extension from a
// file name.
func FileStem(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// PaperKey groups chunks from the same logical paper across roles. The
// metadata title wins when present, otherwise the file-name stem.
func PaperKey(title, fileName string) string {
	if key := NormalizeKey(title); key != "" {
		return key
	}
	return NormalizeKey(FileStem(fileName))
}
