package proto

import "strings"

// splitWords breaks an identifier into case-conversion words: it treats
// runs of uppercase-then-lowercase as one word, keeps digits in the word
// they follow (no split before or after a digit), and splits on any
// existing '_'/'-'/' '.
func splitWords(s string) []string {
	var words []string
	var current []rune

	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = nil
		}
	}

	runes := []rune(s)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ':
			flush()
		case isUpper(r):
			if i > 0 {
				prev := runes[i-1]
				// lower->upper boundary ("fooBar" -> "foo","Bar"), or the
				// end of an acronym run ("HTTPServer" -> "HTTP","Server").
				if isLower(prev) {
					flush()
				} else if isUpper(prev) && i+1 < len(runes) && isLower(runes[i+1]) {
					flush()
				}
			}
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }
func isLower(r rune) bool { return r >= 'a' && r <= 'z' }

// ToSnakeCase converts an identifier to snake_case, matching heck's
// ToSnakeCase as used by the original writer for field and oneof names.
func ToSnakeCase(s string) string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return strings.Join(words, "_")
}

// ToShoutySnakeCase converts an identifier to SHOUTY_SNAKE_CASE, matching
// heck's ToShoutySnakeCase as used by the original writer for enum variant
// names.
func ToShoutySnakeCase(s string) string {
	words := splitWords(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w)
	}
	return strings.Join(words, "_")
}

// ToUpperCamelCase converts an identifier to UpperCamelCase, matching
// heck's ToUpperCamelCase as used by the original writer for RPC method
// names.
func ToUpperCamelCase(s string) string {
	words := splitWords(s)
	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		b.WriteString(strings.ToUpper(lower[:1]))
		b.WriteString(lower[1:])
	}
	return b.String()
}
