package tasksetup

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	affirmativePattern = regexp.MustCompile(`\b(yes|yep|yeah|yup|sure|ok|okay|confirm|confirmed|approve|approved|go ahead|do it|create it|set it up|sounds good|looks good|lgtm|please do|ship it)\b`)
	negationPattern    = regexp.MustCompile(`\b(no|nope|nah|not|don't|dont|do not|never|cancel|stop|wait|hold off|never mind|nevermind)\b`)
	rejectionPattern   = regexp.MustCompile(`^(no|nope|nah|cancel|never mind|nevermind|stop|forget it|don't|dont|do not)\b`)
)

func foldMessage(message string) string {
	s := strings.ToLower(norm.NFC.String(message))
	s = strings.NewReplacer("’", "'", "‘", "'").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// IsExplicitConfirmation reports whether message affirmatively approves a
// proposal. Any negation disqualifies the message.
func IsExplicitConfirmation(message string) bool {
	s := foldMessage(message)
	if s == "" || negationPattern.MatchString(s) {
		return false
	}
	return affirmativePattern.MatchString(s)
}

// IsRejection reports whether message turns a proposal down.
func IsRejection(message string) bool {
	s := foldMessage(message)
	return rejectionPattern.MatchString(s) || strings.Contains(s, "cancel")
}
