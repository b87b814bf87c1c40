package procs

import (
	"fmt"
	"strings"
)

// DefaultMaxArgs is the argument cap applied when none is configured.
const DefaultMaxArgs = 20

// Tokenize splits command on single space characters into at most maxArgs
// arguments. Runs of spaces produce no empty arguments. A command with more
// than maxArgs tokens is rejected with ErrTooManyArgs instead of being
// truncated. maxArgs <= 0 selects DefaultMaxArgs.
func Tokenize(command string, maxArgs int) ([]string, error) {
	if maxArgs <= 0 {
		maxArgs = DefaultMaxArgs
	}

	args := make([]string, 0, 8)
	for _, tok := range strings.Split(command, " ") {
		if tok == "" {
			continue
		}
		if len(args) == maxArgs {
			return nil, fmt.Errorf("%w: %q has more than %d", ErrTooManyArgs, command, maxArgs)
		}
		args = append(args, tok)
	}

	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}
	return args, nil
}
