package teams

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const mentionEntity = "mention"

// ExtractUserText strips bot mentions from a Teams message. Each mention
// markup span is replaced with a space, then a leading bot or mentioned
// display name (optionally prefixed with "@" and followed by ":", "," or "-")
// is removed case-insensitively. An empty result means the user asked nothing.
func ExtractUserText(rawText string, entities []Entity, recipientName string) string {
	if rawText == "" {
		return ""
	}

	message := rawText
	var names []string
	for _, e := range entities {
		if e.Type != mentionEntity {
			continue
		}
		if e.Text != "" {
			message = strings.ReplaceAll(message, e.Text, " ")
		}
		if e.Mentioned != nil && e.Mentioned.Name != "" {
			names = appendUnique(names, e.Mentioned.Name)
		}
	}
	if recipientName != "" {
		names = appendUnique(names, recipientName)
	}

	for _, name := range names {
		message = stripLeadingName(message, name)
	}
	return strings.TrimSpace(message)
}

// stripLeadingName removes name from the start of message when it ends on a
// word boundary. RE2's \b only knows ASCII word characters, so the boundary
// is checked by hand against Unicode letters and digits.
func stripLeadingName(message, name string) string {
	re := regexp.MustCompile(`(?i)^\s*@?` + regexp.QuoteMeta(name))
	loc := re.FindStringIndex(message)
	if loc == nil {
		return message
	}
	last, _ := utf8.DecodeLastRuneInString(message[:loc[1]])
	rest := message[loc[1]:]
	next, _ := utf8.DecodeRuneInString(rest)
	if rest != "" && isWordRune(last) == isWordRune(next) {
		return message
	}
	if rest == "" && !isWordRune(last) {
		return message
	}
	return " " + strings.TrimLeft(rest, ":,-")
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return list
		}
	}
	return append(list, s)
}
