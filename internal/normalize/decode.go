package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

var (
	ErrBinary = errors.New("content looks binary")
	ErrDecode = errors.New("content is not valid text")
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decoder turns raw file bytes into text. UTF-8 (with or without BOM) and
// BOM-marked UTF-16 are recognised; anything else is decoded with the
// fallback charset when one is configured.
type Decoder struct {
	fallback     encoding.Encoding
	fallbackName string
}

// NewDecoder creates a decoder with the given fallback charset label
// (any WHATWG label such as "gbk" or "windows-1252"). An empty label or
// "none" disables the fallback.
func NewDecoder(charset string) (*Decoder, error) {
	charset = strings.TrimSpace(strings.ToLower(charset))
	if charset == "" || charset == "none" {
		return &Decoder{}, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unknown fallback charset %q: %w", charset, err)
	}
	name, _ := htmlindex.Name(enc)
	return &Decoder{fallback: enc, fallbackName: name}, nil
}

// Fallback returns the canonical name of the fallback charset, if any
func (d *Decoder) Fallback() string {
	return d.fallbackName
}

func (d *Decoder) Decode(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	switch {
	case bytes.HasPrefix(raw, bomUTF8):
		raw = raw[len(bomUTF8):]
		if !utf8.Valid(raw) {
			return "", fmt.Errorf("%w: invalid UTF-8 after BOM", ErrDecode)
		}
		return string(raw), nil
	case bytes.HasPrefix(raw, bomUTF16LE), bytes.HasPrefix(raw, bomUTF16BE):
		out, err := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return string(out), nil
	}

	if bytes.IndexByte(raw, 0) >= 0 {
		return "", ErrBinary
	}
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	if d.fallback == nil {
		return "", fmt.Errorf("%w: invalid UTF-8 and no fallback charset", ErrDecode)
	}

	out, err := d.fallback.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDecode, d.fallbackName, err)
	}
	return string(out), nil
}
