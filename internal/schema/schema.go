// Package schema serializes the command tree so agents can discover
// flags and subcommands without scraping help text.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CommandSchema struct {
	Path        string          `json:"path"`
	Use         string          `json:"use"`
	Short       string          `json:"short"`
	Aliases     []string        `json:"aliases,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	GlobalFlags []FlagSchema    `json:"global_flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

type FlagSchema struct {
	Name      string `json:"name"`
	Shorthand string `json:"shorthand,omitempty"`
	Type      string `json:"type"`
	Usage     string `json:"usage"`
	Default   string `json:"default,omitempty"`
	Required  bool   `json:"required,omitempty"`
}

// Build serializes the command addressed by the space-separated path, or
// the whole tree when the path is empty. The addressed node also lists the
// persistent flags it inherits; nested subcommands repeat only their own.
func Build(root *cobra.Command, commandPath string) (CommandSchema, error) {
	cmd, err := descend(root, commandPath)
	if err != nil {
		return CommandSchema{}, err
	}
	s := serialize(cmd)
	if cmd == root {
		s.GlobalFlags = flagList(cmd.PersistentFlags())
	} else {
		s.GlobalFlags = flagList(cmd.InheritedFlags())
	}
	return s, nil
}

func descend(root *cobra.Command, commandPath string) (*cobra.Command, error) {
	cmd := root
	for _, part := range strings.Fields(strings.TrimSpace(commandPath)) {
		next := findChild(cmd, part)
		if next == nil {
			return nil, fmt.Errorf("command not found: %s", commandPath)
		}
		cmd = next
	}
	return cmd, nil
}

func findChild(cmd *cobra.Command, name string) *cobra.Command {
	for _, child := range cmd.Commands() {
		if child.Name() == name || slices.Contains(child.Aliases, name) {
			return child
		}
	}
	return nil
}

func serialize(cmd *cobra.Command) CommandSchema {
	s := CommandSchema{
		Path:    strings.TrimSpace(cmd.CommandPath()),
		Use:     cmd.Use,
		Short:   cmd.Short,
		Aliases: cmd.Aliases,
		Flags:   flagList(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden {
			continue
		}
		s.Subcommands = append(s.Subcommands, serialize(sub))
	}
	return s
}

func flagList(set *pflag.FlagSet) []FlagSchema {
	items := []FlagSchema{}
	set.VisitAll(func(f *pflag.Flag) {
		items = append(items, FlagSchema{
			Name:      f.Name,
			Shorthand: f.Shorthand,
			Type:      f.Value.Type(),
			Usage:     f.Usage,
			Default:   f.DefValue,
			Required:  flagRequired(f),
		})
	})
	return items
}

func flagRequired(f *pflag.Flag) bool {
	marks := f.Annotations[cobra.BashCompOneRequiredFlag]
	return len(marks) > 0 && marks[0] == "true"
}
