// Package extractor scans raw text for email/password credential pairs.
// It is pure and deterministic: the same input always yields the same
// pairs in the same order, so it is safe to run from many goroutines.
package extractor

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRe = regexp.MustCompile(`\b\w+\b`)
)

// Credential is one accepted email paired with one password. The email
// keeps its original spelling; normalization is used only for dedup.
type Credential struct {
	Email    string
	Password string
}

// Stats summarizes one extraction run for the submitter-facing report.
type Stats struct {
	EmailsFound    int `json:"emails_found"`
	EmailsAccepted int `json:"emails_accepted"`
	PasswordsFound int `json:"passwords_found"`
	PasswordsUsed  int `json:"passwords_used"`
	Pairs          int `json:"pairs"`
}

// Config controls domain filtering and the password policy.
type Config struct {
	// AllowedDomains are matched as suffixes against the lower-cased
	// email, e.g. "@gmail.com". Emails outside the list are skipped
	// silently.
	AllowedDomains []string
	// Password length bounds, inclusive.
	MinPasswordLen int
	MaxPasswordLen int
	// Additional punctuation characters accepted in passwords besides
	// letters and digits. Empty by default.
	PasswordPunct string
}

// DefaultDomains is the stock allow-list: Gmail, the Hotmail family and
// iCloud.
var DefaultDomains = []string{
	"@gmail.com",
	"@hotmail.com",
	"@hotmail.co.uk",
	"@hotmail.fr",
	"@hotmail.it",
	"@hotmail.es",
	"@hotmail.de",
	"@icloud.com",
}

type Extractor struct {
	cfg Config
}

func New(cfg Config) *Extractor {
	if len(cfg.AllowedDomains) == 0 {
		cfg.AllowedDomains = DefaultDomains
	}
	if cfg.MinPasswordLen <= 0 {
		cfg.MinPasswordLen = 6
	}
	if cfg.MaxPasswordLen <= 0 {
		cfg.MaxPasswordLen = 12
	}
	return &Extractor{cfg: cfg}
}

// Extract finds every credential pair in text.
//
// Pairing is greedy and order-dependent on purpose: emails are visited
// in scan order, each unseen email takes the first password whose raw
// value has not been used yet, and an email that finds none is dropped
// for good. This mirrors the historical behavior that downstream
// fixtures depend on; it is not a maximum matching.
func (e *Extractor) Extract(text string) ([]Credential, Stats) {
	var st Stats

	emails := emailRe.FindAllString(text, -1)
	st.EmailsFound = len(emails)

	var passwords []string
	for _, tok := range tokenRe.FindAllString(text, -1) {
		if e.validPassword(tok) {
			passwords = append(passwords, tok)
		}
	}
	st.PasswordsFound = len(passwords)

	seenEmails := make(map[string]struct{})
	seenPasswords := make(map[string]struct{})
	var out []Credential

	for _, email := range emails {
		if !e.allowedDomain(email) {
			continue
		}
		norm := NormalizeEmail(email)
		if _, ok := seenEmails[norm]; ok {
			continue
		}
		st.EmailsAccepted++
		for _, pw := range passwords {
			if _, ok := seenPasswords[pw]; ok {
				continue
			}
			out = append(out, Credential{Email: email, Password: pw})
			seenEmails[norm] = struct{}{}
			seenPasswords[pw] = struct{}{}
			st.PasswordsUsed++
			break
		}
	}
	st.Pairs = len(out)
	return out, st
}

func (e *Extractor) allowedDomain(email string) bool {
	lower := strings.ToLower(email)
	for _, d := range e.cfg.AllowedDomains {
		if strings.HasSuffix(lower, d) {
			return true
		}
	}
	return false
}

func (e *Extractor) validPassword(tok string) bool {
	if len(tok) < e.cfg.MinPasswordLen || len(tok) > e.cfg.MaxPasswordLen {
		return false
	}
	var lower, upper, digit bool
	for _, r := range tok {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(e.cfg.PasswordPunct, r):
			// allowed punctuation, counts toward no class
		default:
			return false
		}
	}
	return lower && upper && digit
}

// NormalizeEmail lower-cases an address for the seen-set. Gmail gets
// the dot-insensitive, plus-tag-stripping treatment on the local part;
// every other domain is only lower-cased.
func NormalizeEmail(email string) string {
	email = strings.ToLower(email)
	at := strings.LastIndex(email, "@")
	if at < 0 || email[at:] != "@gmail.com" {
		return email
	}
	local := email[:at]
	local = strings.ReplaceAll(local, ".", "")
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	return local + email[at:]
}

// Serialize writes pairs in first-match order, one "email:password" per
// line.
func Serialize(pairs []Credential) []byte {
	var b strings.Builder
	for i, c := range pairs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Email)
		b.WriteByte(':')
		b.WriteString(c.Password)
	}
	return []byte(b.String())
}

// SerializeBulk writes a deduplicated aggregate sorted
// lexicographically. Bulk output is the one place that sorts; per-file
// artifacts keep scan order.
func SerializeBulk(set map[string]struct{}) []byte {
	lines := make([]string, 0, len(set))
	for l := range set {
		lines = append(lines, l)
	}
	sort.Strings(lines)
	return []byte(strings.Join(lines, "\n"))
}

// Line renders a credential in the artifact line format.
func (c Credential) Line() string { return c.Email + ":" + c.Password }
