// Package commands defines the CLI subcommands and the registry that
// dispatches them
package commands

import (
	"context"
	"sort"
)

// Command is one CLI subcommand
type Command interface {
	// Name is the word typed on the command line (e.g. "points")
	Name() string

	// Usage is a one-line description for help output
	Usage() string

	// Run executes the command with the remaining arguments
	Run(ctx context.Context, args []string) error
}

// Registry manages available commands
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

// Register adds a command, replacing any with the same name
func (r *Registry) Register(cmd Command) {
	r.commands[cmd.Name()] = cmd
}

// Lookup retrieves a command by name
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, exists := r.commands[name]
	return cmd, exists
}

// List returns all registered command names in sorted order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func adapts a function to Command
type Func struct {
	CmdName  string
	CmdUsage string
	Fn       func(ctx context.Context, args []string) error
}

func (f Func) Name() string  { return f.CmdName }
func (f Func) Usage() string { return f.CmdUsage }

func (f Func) Run(ctx context.Context, args []string) error {
	return f.Fn(ctx, args)
}
