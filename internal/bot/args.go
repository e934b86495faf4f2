package bot

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/daladal/discord-bot/internal/errs"
)

// ParseArgs splits a command line on whitespace. Double quotes group words
// into one argument and are dropped; an unterminated quote runs to the end.
func ParseArgs(input string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		started bool
	)
	flush := func() {
		if started {
			args = append(args, cur.String())
			cur.Reset()
			started = false
		}
	}
	for _, r := range input {
		switch {
		case r == '"':
			quoted = !quoted
			if !quoted {
				// keep "" as an explicit empty argument
				started = true
			}
		case unicode.IsSpace(r) && !quoted:
			flush()
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	flush()
	return args
}

// ParseRiotID splits "Name#TAG". Both halves must be non-empty and exactly
// one '#' is allowed.
func ParseRiotID(s string) (name, tag string, err error) {
	parts := strings.Split(s, "#")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q", errs.ErrInvalidRiotID, s)
	}
	name, tag = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if name == "" || tag == "" {
		return "", "", fmt.Errorf("%w: %q", errs.ErrInvalidRiotID, s)
	}
	return name, tag, nil
}
