package metrics

import (
	"strings"
	"unicode"
)

var friendlyAliases = map[string]string{
	"url.Error":                     "Request URL error",
	"net.DNSError":                  "DNS lookup error",
	"errors.errorString":            "Generic error",
	"fmt.wrapError":                 "Generic error",
	"context.deadlineExceededError": "Context deadline exceeded",
	"context.deadlineExceeded":      "Context deadline exceeded",
}

// packageLabels collapses every error type of a package into one label.
var packageLabels = map[string]string{
	"net":     "Network error",
	"syscall": "System call error",
}

// FriendlyErrorName turns a type name as printed by %T into a label for the
// error breakdown, e.g. "*net.OpError" -> "Network error" and
// "*report.DeliveryError" -> "Delivery Error (report)".
func FriendlyErrorName(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	if name == "" {
		return "Unknown error"
	}
	if i := strings.LastIndex(name, "/"); i != -1 {
		name = name[i+1:]
	}
	if alias, ok := friendlyAliases[name]; ok {
		return alias
	}

	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}
	if label, ok := packageLabels[strings.ToLower(pkg)]; ok {
		return label
	}

	words := splitCamel(typ)
	for i, w := range words {
		if !isAcronym(w) {
			r := []rune(strings.ToLower(w))
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
	}
	pretty := strings.Join(words, " ")
	if pretty == "" {
		pretty = typ
	}

	if pkg == "" || pkg == "main" {
		return pretty
	}
	return pretty + " (" + pkg + ")"
}

// splitCamel splits "myHTTPFailure" into [my HTTP Failure]. A run of capitals
// followed by a lowercase letter gives its last capital to the next word, and
// digits start a new word.
func splitCamel(s string) []string {
	runes := []rune(s)
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, r := runes[i-1], runes[i]
		lowerNext := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		boundary := unicode.IsUpper(r) && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && lowerNext))
		boundary = boundary || (unicode.IsDigit(r) && !unicode.IsDigit(prev))
		if boundary {
			words = append(words, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		words = append(words, string(runes[start:]))
	}
	return words
}

func isAcronym(w string) bool {
	letters := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			if !unicode.IsUpper(r) {
				return false
			}
			letters++
		}
	}
	return letters > 0
}
