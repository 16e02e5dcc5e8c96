package content

import (
	"strings"
	"unicode"
)

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true, "prof": true, "sir": true,
}

var suffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "phd": true, "md": true,
}

// ParseName splits a display name into first and last name. When fullName
// is empty the email local part is used ("jane.doe@x" -> Jane, Doe).
// Role mailboxes and single-token local parts yield only a first name.
func ParseName(fullName, email string) (first, last string) {
	name := strings.TrimSpace(fullName)
	if name == "" {
		return nameFromEmail(email)
	}

	// "Doe, Jane"
	if i := strings.Index(name, ","); i > 0 {
		surname := strings.TrimSpace(name[:i])
		rest := strings.Fields(name[i+1:])
		rest = trimTitles(rest)
		if len(rest) > 0 {
			return rest[0], surname
		}
		return surname, ""
	}

	parts := trimTitles(strings.Fields(name))
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], parts[len(parts)-1]
	}
}

func trimTitles(parts []string) []string {
	for len(parts) > 0 && honorifics[normToken(parts[0])] {
		parts = parts[1:]
	}
	for len(parts) > 1 && suffixes[normToken(parts[len(parts)-1])] {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func normToken(s string) string {
	return strings.ToLower(strings.Trim(s, ".,"))
}

var roleMailboxes = map[string]bool{
	"info": true, "admin": true, "sales": true, "support": true, "contact": true,
	"hello": true, "office": true, "team": true, "noreply": true, "no-reply": true,
}

func nameFromEmail(email string) (string, string) {
	at := strings.Index(email, "@")
	if at <= 0 {
		return "", ""
	}
	local := strings.ToLower(email[:at])
	if i := strings.Index(local, "+"); i >= 0 {
		local = local[:i]
	}
	if roleMailboxes[local] {
		return "", ""
	}

	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || unicode.IsDigit(r)
	})
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return titleCase(tokens[0]), ""
	default:
		return titleCase(tokens[0]), titleCase(tokens[len(tokens)-1])
	}
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
