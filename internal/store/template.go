package store

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Template substitutes {name} placeholders in a SQL template with
// identifier values. Intended for table and column names in caller
// supplied queries, e.g.:
//
//	Template("SELECT * FROM {pool} WHERE {sex} IS NOT NULL",
//	         map[string]string{"pool": "controls", "sex": "sex"})
//
// Every substituted value must be a bare identifier (word characters
// only); data values belong in ? parameters, never in the template.
// Unknown placeholders are an error rather than passing through, so a
// typo fails loudly.
func Template(src string, vars map[string]string) (string, error) {
	var substErr error

	out := placeholderPattern.ReplaceAllStringFunc(src, func(m string) string {
		name := strings.Trim(m, "{}")
		val, ok := vars[name]
		if !ok {
			if substErr == nil {
				substErr = fmt.Errorf("template placeholder {%s} has no value", name)
			}
			return m
		}
		quoted, err := quoteIdent(val)
		if err != nil {
			if substErr == nil {
				substErr = fmt.Errorf("template placeholder {%s}: %w", name, err)
			}
			return m
		}
		return quoted
	})

	if substErr != nil {
		return "", substErr
	}
	return out, nil
}
