package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectBytes(t *testing.T) {
	d := New()

	info := d.DetectBytes([]byte("user@gmail.com:Passw0rd\nplain text lines\n"))
	assert.Equal(t, KindText, info.Kind)
	assert.True(t, info.Supported)

	info = d.DetectBytes([]byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n"))
	assert.Equal(t, KindPDF, info.Kind)
	assert.True(t, info.Supported)

	// PNG magic bytes are not a processable source.
	info = d.DetectBytes([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0})
	assert.Equal(t, KindUnsupported, info.Kind)
	assert.False(t, info.Supported)
}

func TestScreenName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"combo.txt", true},
		{"report.csv", true},
		{"server.log", true},
		{"README.md", true},
		{"dump.pdf", true},
		{"Passwords.TXT", true},
		{"all_passwords.txt", true},
		{"combolist-all.txt", true},
		{"archive.zip", false},
		{"image.png", false},
		{"binary", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ScreenName(tt.name))
		})
	}
}
