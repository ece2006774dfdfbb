package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Compile every machine in a definition file",
		Long:  `Compiles every machine declared in the file. Fails on transition table collisions, fan-outs without a resolver, reserved transition names and hooks that are not registered.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, g, err := loadGroup(args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, name := range g.Names() {
				m, _ := g.Get(name)
				fmt.Fprintf(out, "%s: %d transitions, initial %s\n", name, len(m.Transitions()), m.Current())
			}
			fmt.Fprintf(out, "%d machines valid\n", g.Len())
			return nil
		},
	}
}
