package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContent(t *testing.T) {
	assert.Equal(t, "hello world", NormalizeContent("  Hello\n\n  WORLD \t"))
	assert.Equal(t, "", NormalizeContent("   "))
}

func TestHashContent(t *testing.T) {
	// Cosmetic formatting differences hash identically.
	assert.Equal(t, HashContent("Hello World"), HashContent("hello\n  world"))
	assert.NotEqual(t, HashContent("hello world"), HashContent("hello there"))
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SegFormer: Simple and Efficient Design!", "segformer simple and efficient design"},
		{"DeepLab-v3", "deeplab v3"},
		{"  --  ", ""},
		{"già été", "già été"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeKey(tt.in), tt.in)
	}
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "paper", FileStem("paper.pdf"))
	assert.Equal(t, "archive.tar", FileStem("dir/archive.tar.gz"))
	assert.Equal(t, "noext", FileStem("noext"))
}

func TestPaperKey(t *testing.T) {
	assert.Equal(t, "segformer", PaperKey("SegFormer", "whatever.pdf"))
	assert.Equal(t, "my paper", PaperKey("", "my-paper.pdf"))
}
