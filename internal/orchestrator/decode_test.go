package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

func TestDecodeTextUTF8(t *testing.T) {
	text, enc := DecodeText([]byte("plain utf-8 with ünïcode"))
	assert.Equal(t, "plain utf-8 with ünïcode", text)
	assert.Equal(t, "utf-8", enc)
}

func TestDecodeTextUTF16LE(t *testing.T) {
	raw, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte("user@gmail.com Abcdef1"))
	assert.NoError(t, err)

	text, enc := DecodeText(raw)
	assert.Equal(t, "user@gmail.com Abcdef1", text)
	assert.Equal(t, "utf-16", enc)
}

func TestDecodeTextUTF16BE(t *testing.T) {
	raw, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte("hello"))
	assert.NoError(t, err)

	text, enc := DecodeText(raw)
	assert.Equal(t, "hello", text)
	assert.Equal(t, "utf-16", enc)
}

func TestDecodeTextWindows1252(t *testing.T) {
	raw, err := charmap.Windows1252.NewEncoder().Bytes([]byte("café"))
	assert.NoError(t, err)
	// 0xE9 alone is invalid UTF-8, so the 1252 fallback kicks in.
	text, enc := DecodeText(raw)
	assert.Equal(t, "café", text)
	assert.Equal(t, "windows-1252", enc)
}

func TestDecodeTextNeverFails(t *testing.T) {
	text, _ := DecodeText([]byte{0xFF, 0xFE, 0x00})
	assert.NotEmpty(t, text)
}
