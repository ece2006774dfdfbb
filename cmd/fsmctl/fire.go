package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

func newFireCmd() *cobra.Command {
	var (
		machine string
		seq     []string
		fireArg []string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "fire <file>",
		Short: "Replay a sequence of transitions and print each record",
		Long: `Builds the machines in the file, fires the given transitions in order on one machine and prints the record after each step. Asynchronous transitions are awaited up to --timeout.

A step may carry its own argument as name:arg, which replaces the --arg values for that step.`,
		Example: `  fsmctl fire machines.yml -m door --seq open,close,lock
  fsmctl fire machines.yml -m loader --seq load:20ms,route:ok`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settled := make(chan statemachine.Event, 1)
			watch := statemachine.ObserverFunc(func(ev statemachine.Event) {
				if ev.Type == statemachine.TypeAsync && ev.Outcome != statemachine.OutcomeStarted {
					select {
					case settled <- ev:
					default:
					}
				}
			})
			_, g, err := loadGroup(args[0], statemachine.WithObserver(watch))
			if err != nil {
				return err
			}
			m, ok := g.Get(machine)
			if !ok {
				return fmt.Errorf("machine %q not found", machine)
			}

			common := make([]any, len(fireArg))
			for i, a := range fireArg {
				common[i] = a
			}

			out := cmd.OutOrStdout()
			printRecord(cmd, "start", "", m.Record())
			for _, step := range seq {
				name, callArgs := parseStep(step, common)
				ignored := !m.Can(name)
				def, _ := m.Table().Definition(name)
				select {
				case <-settled:
				default:
				}
				if err := m.Fire(cmd.Context(), name, callArgs...); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				if !ignored && def != nil && def.IsAsync() {
					if err := awaitSettled(cmd.Context(), settled, timeout); err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
				}
				note := ""
				if ignored {
					note = "ignored"
				}
				printRecord(cmd, name, note, m.Record())
			}
			fmt.Fprintf(out, "final state: %s\n", m.Current())
			return nil
		},
	}
	cmd.Flags().StringVarP(&machine, "machine", "m", "", "Machine to drive")
	cmd.Flags().StringSliceVarP(&seq, "seq", "s", nil, "Comma separated transition names")
	cmd.Flags().StringSliceVarP(&fireArg, "arg", "a", nil, "Arguments passed to every transition")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for asynchronous transitions")
	_ = cmd.MarkFlagRequired("machine")
	_ = cmd.MarkFlagRequired("seq")
	return cmd
}

// parseStep 拆分 name:arg 形式的步骤
func parseStep(step string, common []any) (string, []any) {
	name, arg, ok := strings.Cut(step, ":")
	if !ok {
		return step, common
	}
	return name, []any{arg}
}

func printRecord(cmd *cobra.Command, step, note string, r statemachine.Record) {
	line := fmt.Sprintf("%-10s current=%s prev=%s status=%s type=%s",
		step, r.Current, r.Prev, r.Status, r.Type)
	if note != "" {
		line += " (" + note + ")"
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

// awaitSettled 等待进行中的异步转换结束，返回其失败原因
func awaitSettled(ctx context.Context, settled <-chan statemachine.Event, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev := <-settled:
		return ev.Err
	case <-timer.C:
		return fmt.Errorf("asynchronous transition still pending after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
