package textextract

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

var ErrEmptyDocument = errors.New("document is empty")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeText turns uploaded text bytes into a UTF-8 string. It tries UTF-8,
// UTF-16 (by BOM), GBK, and finally Latin-1, which never fails.
func DecodeText(b []byte) (string, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return "", ErrEmptyDocument
	}
	if bytes.HasPrefix(b, utf8BOM) {
		b = b[len(utf8BOM):]
	}
	if utf8.Valid(b) {
		return normalizeNewlines(string(b)), nil
	}
	if len(b) >= 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		if s, ok := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.UseBOM), b); ok {
			return normalizeNewlines(s), nil
		}
	}
	if s, ok := decodeWith(simplifiedchinese.GBK, b); ok {
		return normalizeNewlines(s), nil
	}
	s, _ := decodeWith(charmap.ISO8859_1, b)
	return normalizeNewlines(s), nil
}

func decodeWith(enc encoding.Encoding, b []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	s := string(out)
	if strings.ContainsRune(s, utf8.RuneError) {
		return "", false
	}
	return s, true
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
