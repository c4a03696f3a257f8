package config

import (
	"fmt"
	"strings"
)

// Error reports everything wrong with a configuration file at once.
type Error struct {
	Path    string
	Missing []string // unresolved ${VAR} references
	Errors  []string // validation failures
}

func (e *Error) Error() string {
	var b strings.Builder
	path := e.Path
	if path == "" {
		path = "<defaults>"
	}
	fmt.Fprintf(&b, "config %s:", path)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " missing environment variables: %s", strings.Join(e.Missing, ", "))
		if len(e.Errors) > 0 {
			b.WriteString(";")
		}
	}
	if len(e.Errors) > 0 {
		fmt.Fprintf(&b, " %s", strings.Join(e.Errors, "; "))
	}
	return b.String()
}
