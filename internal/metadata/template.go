package metadata

import (
	"fmt"
	"net/url"
	"strings"
)

// Expand replaces {name} placeholders in tmpl with values from vars.
// Placeholder names match case-insensitively. Values are inserted as-is except
// for path escaping of characters that would break the URL.
func Expand(tmpl string, vars map[string]string) (string, error) {
	folded := make(map[string]string, len(vars))
	for k, v := range vars {
		folded[fold(k)] = v
	}

	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated placeholder in %q", tmpl)
		}
		name := rest[open+1 : open+end]
		val, ok := folded[fold(name)]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrMissingVar, name)
		}
		b.WriteString(rest[:open])
		b.WriteString(escapeVar(val))
		rest = rest[open+end+1:]
	}
	return b.String(), nil
}

func escapeVar(v string) string {
	// Keep '/' and ':' so server-relative paths and host:path forms survive.
	return strings.NewReplacer("%2F", "/", "%3A", ":").Replace(url.PathEscape(v))
}
