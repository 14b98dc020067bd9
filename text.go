package pack

import "path"

// TextFormat is the declared sub-format of a free-text entry.
type TextFormat int

const (
	TextPlain TextFormat = iota
	TextMarkdown
	TextLua
	TextXML
	TextJSON
)

func (t TextFormat) String() string {
	switch t {
	case TextMarkdown:
		return "markdown"
	case TextLua:
		return "lua"
	case TextXML:
		return "xml"
	case TextJSON:
		return "json"
	default:
		return "plain"
	}
}

// Text is a decoded free-text entry. Contents hold the payload bytes
// verbatim, so re-encode is exact regardless of the declared sub-format.
type Text struct {
	Format   TextFormat
	Contents string
}

func (t *Text) FileType() FileType { return TypeText }
func (t *Text) isDecoded()         {}

// DecodeText wraps a payload as text, deriving the sub-format from the
// entry's extension. It cannot fail; arbitrary bytes survive the round trip.
func DecodeText(p string, data []byte) *Text {
	format := TextPlain
	if f, ok := textFormats[path.Ext(foldPath(p))]; ok {
		format = f
	}
	return &Text{Format: format, Contents: string(data)}
}

// Encode returns the text's payload bytes.
func (t *Text) Encode() []byte {
	return []byte(t.Contents)
}
