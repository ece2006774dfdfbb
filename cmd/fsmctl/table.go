package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTableCmd() *cobra.Command {
	var machine string
	cmd := &cobra.Command{
		Use:   "table <file>",
		Short: "Print the compiled transition table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, g, err := loadGroup(args[0])
			if err != nil {
				return err
			}

			names := g.Names()
			if machine != "" {
				if _, ok := g.Get(machine); !ok {
					return fmt.Errorf("machine %q not found", machine)
				}
				names = []string{machine}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "MACHINE\tFROM\tTO\tTRANSITION\tMODE")
			for _, name := range names {
				m, _ := g.Get(name)
				table := m.Table()
				for _, from := range table.Sources() {
					for _, to := range table.Destinations(from) {
						edge, _ := table.Lookup(from, to)
						mode := "sync"
						if edge.Definition.IsAsync() {
							mode = "async"
						}
						if edge.Definition.To.IsFanOut() {
							mode += ",fan-out"
						}
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, from, to, edge.Name, mode)
					}
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&machine, "machine", "m", "", "Only print this machine")
	return cmd
}
