package domain

import (
	"strings"
	"unicode"
)

// SanitizeText flattens model output for storage: escaped and real line
// breaks and other control characters become single spaces, then the
// result is trimmed. Quotes are left alone.
func SanitizeText(text string) string {
	text = strings.ReplaceAll(text, `\r\n`, " ")
	text = strings.ReplaceAll(text, `\n`, " ")
	text = strings.ReplaceAll(text, `\r`, " ")

	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range text {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}

// Sanitized returns a copy with every free-text field passed through SanitizeText.
func (s Summary) Sanitized() Summary {
	s.Opinion = SanitizeText(s.Opinion)
	s.Mitigation = SanitizeText(s.Mitigation)
	s.RelevantInfo = SanitizeText(s.RelevantInfo)
	s.Machine = SanitizeText(s.Machine)
	return s
}
