package logger

import (
	"regexp"
	"strings"
)

// piiKeys are field-name fragments whose values are treated as addresses.
var piiKeys = []string{"email", "recipient", "reply_to"}

var embeddedAddress = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// RedactEmail keeps the first two characters of the local part and the
// domain: "john.doe@example.com" becomes "jo***@example.com". Local parts of
// two characters or fewer are masked entirely.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}

// redactPIIValue masks val whole when key names an address field, and masks
// any addresses embedded in free text otherwise.
func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	for _, k := range piiKeys {
		if strings.Contains(key, k) {
			return RedactEmail(val)
		}
	}
	return embeddedAddress.ReplaceAllStringFunc(val, RedactEmail)
}
