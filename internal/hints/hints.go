// Package hints derives entity candidates from scan filenames. The
// scan service encodes date, sender, recipient and subject into the
// name, with spaces sometimes replaced by underscores.
package hints

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mlehnert/docner/constants"
)

// reFilename matches names like
// "2024_11_13-CS-#-133-Dropscan an ZvW Beteiligungen GmbH-Rechnung 24111351.pdf".
var reFilename = regexp.MustCompile(`(\d{4}_\d{2}_\d{2})-.*?#-\d+-(.*?) an (.*?)-(.*)\.pdf`)

// Hints are the entity candidates encoded in a filename. Empty fields
// mean the filename carried no value for that slot.
type Hints struct {
	Date       string
	Absender   string
	Empfaenger string
	Betreff    string
}

// FromFilename parses the scan-service naming convention out of path's
// base name. The second return is false when the name does not follow
// the convention.
func FromFilename(path string) (Hints, bool) {
	name := filepath.Base(path)
	m := reFilename.FindStringSubmatch(name)
	if m == nil {
		return Hints{}, false
	}
	return Hints{
		Date:       m[1],
		Absender:   restoreSpaces(m[2]),
		Empfaenger: restoreSpaces(m[3]),
		Betreff:    restoreSpaces(m[4]),
	}, true
}

// Empty reports whether no entity slot carries a value.
func (h Hints) Empty() bool {
	return h.Absender == "" && h.Empfaenger == "" && h.Betreff == ""
}

// ForLabel returns the candidate for an entity label, or "" for
// unknown labels.
func (h Hints) ForLabel(label string) string {
	switch label {
	case constants.LabelAbsender:
		return h.Absender
	case constants.LabelEmpfänger:
		return h.Empfaenger
	case constants.LabelBetreff:
		return h.Betreff
	}
	return ""
}

func restoreSpaces(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "_", " "))
}
