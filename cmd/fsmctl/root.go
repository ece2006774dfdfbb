package main

import (
	"github.com/spf13/cobra"

	"github.com/junbin-yang/go-fsmkit/internal/hooks"
	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fsmctl",
		Short:         "Validate, inspect and serve declarative state machines",
		Long:          `fsmctl loads state machine definition files (YAML or JSON), checks them for table collisions and unknown hooks, replays transitions, and serves machines over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			levelName, _ := cmd.Flags().GetString("log-level")
			level, err := logger.ParseLevel(levelName)
			if err != nil {
				return err
			}
			logger.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "warn", "Log level for commands (debug, info, warn, error)")

	root.AddCommand(
		newValidateCmd(),
		newTableCmd(),
		newFireCmd(),
		newServeCmd(),
	)
	return root
}

// loadGroup 读取定义文件并用内置钩子构造全部状态机
func loadGroup(path string, opts ...statemachine.Option) (*statemachine.Document, *statemachine.Group, error) {
	doc, err := statemachine.LoadDocument(path)
	if err != nil {
		return nil, nil, err
	}
	g, err := statemachine.BuildGroup(doc, hooks.New(logger.Default()), opts...)
	if err != nil {
		return nil, nil, err
	}
	return doc, g, nil
}
