// Package config handles scriptrun.yaml loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches $${...} escapes and ${NAME}, ${NAME:-default} and
// ${NAME:?message} references.
var envRef = regexp.MustCompile(`\$(\$?)\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// MissingEnvError reports a ${NAME:?message} reference whose variable is
// unset or empty.
type MissingEnvError struct {
	Name    string
	Message string
}

func (e *MissingEnvError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("environment variable %s is required", e.Name)
	}
	return fmt.Sprintf("environment variable %s is required: %s", e.Name, e.Message)
}

// ExpandEnv substitutes environment references in input.
//
// An unset or empty variable expands to its default, or to "" without one.
// Required references that cannot be satisfied are collected and returned
// together. $${NAME} is left in the output as the literal ${NAME}.
func ExpandEnv(input string) (string, error) {
	var b strings.Builder
	var errs []error
	last := 0
	for _, m := range envRef.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		if m[3] > m[2] {
			// Escaped: drop the leading $ only.
			b.WriteString(input[m[0]+1 : m[1]])
			continue
		}

		name := input[m[4]:m[5]]
		var op, arg string
		if m[6] >= 0 {
			op, arg = input[m[6]:m[7]], input[m[8]:m[9]]
		}

		value := os.Getenv(name)
		switch {
		case value != "":
			b.WriteString(value)
		case op == "-":
			b.WriteString(arg)
		case op == "?":
			errs = append(errs, &MissingEnvError{Name: name, Message: arg})
		}
	}
	b.WriteString(input[last:])
	return b.String(), errors.Join(errs...)
}
