package linesource

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// binarySniff is how many leading bytes are checked for NUL, as grep -I does.
const binarySniff = 8000

// Decoder turns file bytes into text using a named encoding. Invalid
// sequences become U+FFFD.
type Decoder struct {
	name string
	enc  encoding.Encoding
}

// NewDecoder looks up name in the WHATWG encoding index ("utf-8",
// "windows-1252", "shift_jis", ...). An empty name means UTF-8.
func NewDecoder(name string) (*Decoder, error) {
	if strings.TrimSpace(name) == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return &Decoder{name: name, enc: enc}, nil
}

// Name returns the encoding name the decoder was built with.
func (d *Decoder) Name() string { return d.name }

// IsUTF8 reports whether the decoder passes UTF-8 through unchanged.
func (d *Decoder) IsUTF8() bool { return d.enc == unicode.UTF8 }

// String decodes b.
func (d *Decoder) String(b []byte) string {
	if d.IsUTF8() && utf8.Valid(b) {
		return string(b)
	}
	out, err := d.enc.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

// IsBinary reports whether b has a NUL byte in its first 8000 bytes.
func IsBinary(b []byte) bool {
	n := len(b)
	if n > binarySniff {
		n = binarySniff
	}
	for i := 0; i < n; i++ {
		if b[i] == 0 {
			return true
		}
	}
	return false
}

// ReadText reads and decodes the file at p. Binary files yield ok=false.
func (d *Decoder) ReadText(p string) (text string, ok bool, err error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return "", false, err
	}
	if IsBinary(b) {
		return "", false, nil
	}
	return d.String(b), true, nil
}

// SplitLines splits text on "\n", dropping a trailing "\r" from each line
// and the empty element after a final newline.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
