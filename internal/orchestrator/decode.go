package orchestrator

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DecodeText turns raw file bytes into a UTF-8 string, trying
// encodings in order: valid UTF-8 as-is, UTF-16 when a BOM is
// present, then Windows-1252. As a last resort invalid sequences are
// replaced so extraction always has something to scan.
func DecodeText(data []byte) (text string, encoding string) {
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}

	if len(data) >= 2 && ((data[0] == 0xFF && data[1] == 0xFE) || (data[0] == 0xFE && data[1] == 0xFF)) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		if out, err := dec.Bytes(data); err == nil && utf8.Valid(out) {
			return string(out), "utf-16"
		}
	}

	if out, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
		return string(out), "windows-1252"
	}

	return strings.ToValidUTF8(string(data), "�"), "lossy-utf-8"
}
