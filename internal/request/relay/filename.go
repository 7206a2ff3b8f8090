package relay

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fileDateLayout = "20060102"

// SafeName folds s to ASCII and replaces anything outside [A-Za-z0-9._-]
// with an underscore. Accents are dropped rather than replaced.
func SafeName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(folded) {
		ok := r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-')
		if ok {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "file"
	}
	return out
}

// AttachmentName names a requester upload:
// <ticket>_<kind>_<requester>_<date>_<original>.
func AttachmentName(ticket string, dest Destination, requester string, submitted time.Time, original string) string {
	return fmt.Sprintf("%s_%s_%s_%s_%s", ticket, dest, SafeName(requester), submitted.Format(fileDateLayout), SafeName(filepath.Base(original)))
}

// OutputName names a coordinator output: <ticket>_output_<name>_<date>.
func OutputName(ticket, original string, completed time.Time) string {
	return fmt.Sprintf("%s_output_%s_%s", ticket, SafeName(filepath.Base(original)), completed.Format(fileDateLayout))
}

// SummaryName is the stored filename of a request summary document.
func SummaryName(ticket string) string {
	return ticket + "_communications_request_summary.pdf"
}
