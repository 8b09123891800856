// =============================================================================
// Tally Import - Document Loader
// =============================================================================
//
// Turns raw export bytes into the Node tree the classifiers walk.
//
// TALLY EXPORT QUIRKS HANDLED HERE:
//   - Exports are frequently UTF-16 (with or without a BOM). They are decoded
//     to UTF-8 before parsing and the encoding declared in the prolog is
//     ignored.
//   - Exports contain character references to control characters such as
//     &#4; that XML 1.0 forbids. They are removed.
//
// =============================================================================

package tally

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrEmptyDocument is returned when the input holds no XML at all.
var ErrEmptyDocument = errors.New("no XML content provided")

// invalidCharRef matches character references XML 1.0 does not allow
// (everything below 0x20 except tab, newline and carriage return).
var invalidCharRef = regexp.MustCompile(`&#(0*([0-8]|1[124-9]|2[0-9]|3[01])|[xX]0*([0-8bBcCeEfF]|1[0-9a-fA-F]));`)

// Decode converts raw export bytes to a UTF-8 string.
//
// A UTF-8 or UTF-16 byte order mark selects the encoding. Without a BOM, a
// document whose second byte is NUL is read as UTF-16LE, which is what Tally
// writes on Windows.
func Decode(raw []byte) (string, error) {
	var t transform.Transformer
	switch {
	case len(raw) >= 2 && raw[0] != 0 && raw[1] == 0:
		t = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	default:
		t = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	}

	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode export: %w", err)
	}
	return string(out), nil
}

// Sanitize removes control characters that would make the parser reject an
// otherwise well-formed export.
func Sanitize(xml string) string {
	xml = invalidCharRef.ReplaceAllString(xml, "")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, xml)
}

// Parse builds the Node tree for an XML document. The returned node has a
// single key, the root element's tag.
func Parse(xml string) (*Node, error) {
	if strings.TrimSpace(xml) == "" {
		return nil, ErrEmptyDocument
	}

	doc := etree.NewDocument()
	// Content is already UTF-8; the prolog may still claim UTF-16.
	doc.ReadSettings.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	if err := doc.ReadFromString(Sanitize(xml)); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("failed to parse XML: %w", ErrEmptyDocument)
	}

	top := NewNode()
	top.Add(root.FullTag(), convert(root))
	return top, nil
}

// ParseBytes decodes and parses raw export bytes.
func ParseBytes(raw []byte) (*Node, error) {
	xml, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	return Parse(xml)
}

// convert maps an element to a leaf string or a *Node.
func convert(e *etree.Element) any {
	children := e.ChildElements()
	text := strings.TrimSpace(e.Text())

	if len(e.Attr) == 0 && len(children) == 0 {
		return text
	}

	n := NewNode()
	for _, a := range e.Attr {
		key := a.Key
		if a.Space != "" {
			key = a.Space + ":" + a.Key
		}
		n.Add(AttrPrefix+key, strings.TrimSpace(a.Value))
	}
	if text != "" {
		n.Add(TextKey, text)
	}
	for _, c := range children {
		n.Add(c.FullTag(), convert(c))
	}
	return n
}
