package driver

import "fmt"

// ValidateIdentifier checks that a table or column name is safe to embed in
// generated SQL. Identifiers reach the generators from operator-edited
// mappings, so this is the injection boundary.
//
// Valid identifiers start with a letter or underscore, contain only letters,
// digits and underscores, and are at most 63 characters (the PostgreSQL
// limit, the strictest of the supported destinations).
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 63 {
		return fmt.Errorf("identifier too long: %d characters (max 63)", len(name))
	}
	if !isIdentStart(rune(name[0])) {
		return fmt.Errorf("identifier must start with letter or underscore: %q", name)
	}
	for i, r := range name {
		if i == 0 {
			continue
		}
		if !isIdentChar(r) {
			return fmt.Errorf("identifier contains invalid character %q at position %d: %q", r, i, name)
		}
	}
	return nil
}

func isIdentStart(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
}

func isIdentChar(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
