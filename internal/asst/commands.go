package asst

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mithrel/asst/internal/util"
)

var ErrUnknownCommand = errors.New("unknown server command")

// Commands is the set of module functions a server advertised.
type Commands struct {
	names []string
}

func NewCommands(names []string) *Commands {
	return &Commands{names: slices.Clone(names)}
}

func (c *Commands) Names() []string { return slices.Clone(c.names) }

func (c *Commands) Has(name string) bool { return slices.Contains(c.names, name) }

// Lookup returns nil for a known name, otherwise ErrUnknownCommand with the closest
// advertised names.
func (c *Commands) Lookup(name string) error {
	if c.Has(name) {
		return nil
	}
	if near := c.Suggest(name, 3); len(near) > 0 {
		return fmt.Errorf("%w %q (did you mean %s?)", ErrUnknownCommand, name, strings.Join(near, ", "))
	}
	return fmt.Errorf("%w %q", ErrUnknownCommand, name)
}

// Suggest ranks advertised names by fuzzy similarity to input.
func (c *Commands) Suggest(input string, n int) []string {
	if input == "" {
		return nil
	}
	return util.ScoreCompletions(input, c.names, n)
}
