// Package filetype screens candidate files by name and classifies
// downloaded bytes by magic numbers.
package filetype

import (
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the processing route for a file.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindPDF
)

// Info describes a classified payload.
type Info struct {
	MIME        string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

// Detector classifies payloads using magic bytes, not filenames.
type Detector struct{}

func New() *Detector { return &Detector{} }

// DetectBytes classifies in-memory content.
func (d *Detector) DetectBytes(data []byte) *Info {
	mtype := mimetype.Detect(data)
	info := &Info{
		MIME:      mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	log.Debug().Str("mime", info.MIME).Str("ext", info.Extension).Bool("supported", info.Supported).Msg("detected content type")
	return info
}

func (d *Detector) classify(info *Info) {
	switch {
	case strings.HasPrefix(info.MIME, "text/"):
		info.Kind = KindText
		info.Supported = true
		info.Description = "Plain text file"
	case info.MIME == "application/pdf":
		info.Kind = KindPDF
		info.Supported = true
		info.Description = "PDF document"
	case info.MIME == "application/csv":
		info.Kind = KindText
		info.Supported = true
		info.Description = "CSV file"
	default:
		info.Kind = KindUnsupported
		info.Description = "Unsupported format"
	}
}

var supportedExts = []string{".txt", ".csv", ".log", ".md", ".pdf"}

// Name patterns commonly used for credential dumps. A match admits the
// file even when its extension alone would not.
var passwordFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)pass(?:word)?s?\.txt$`),
	regexp.MustCompile(`(?i)all[_\s-]*pass(?:word)?s?\.txt$`),
	regexp.MustCompile(`(?i)pass(?:word)?s?[_\s-]*all\.txt$`),
	regexp.MustCompile(`(?i)(?:combo|combolist)[_\s-]*all\.txt$`),
	regexp.MustCompile(`(?i)credentials?[_\s-]*all\.txt$`),
	regexp.MustCompile(`(?i)full[_\s-]*pass(?:word)?s?\.txt$`),
	regexp.MustCompile(`(?i)pass(?:word)?s?[_\s-]*dump\.txt$`),
	regexp.MustCompile(`(?i)dump[_\s-]*pass(?:word)?s?\.txt$`),
}

// ScreenName decides at submission time whether a filename looks like a
// processable source. Content is still verified by magic bytes after
// download.
func ScreenName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range supportedExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, re := range passwordFilePatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}
