// Package cli is the lightup command line: the daemon entry point plus
// one-shot commands that work on the configured store directly.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"lightup/internal/app"
	logx "lightup/pkg/logx"
)

const commandTimeout = 30 * time.Second

type rootOptions struct {
	configPath string
	output     string
	noColor    bool
	verbose    bool
}

// NewRootCommand builds the command tree. Output goes to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "lightup",
		Short:         "Weekday alarm scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("LIGHTUP_CONFIG"), "config file (json or yaml); empty uses env and defaults")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "output format (table, json, yaml)")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colorized output")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newServeCommand(opts),
		newAlarmsCommand(opts),
		newSettingCommand(opts, "snooze"),
		newSettingCommand(opts, "prealert"),
		newExportCommand(opts),
		newImportCommand(opts),
		newReconcileCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	root := NewRootCommand(os.Stdout)
	if err := root.Execute(); err != nil {
		newPrinter(os.Stderr, false).errorf("%v", err)
		return 1
	}
	return 0
}

func (o *rootOptions) logger() logx.Logger {
	if !o.verbose {
		return logx.Nop()
	}
	return logx.NewWriter(os.Stderr, "debug")
}

func (o *rootOptions) printer(cmd *cobra.Command) *printer {
	p := newPrinter(cmd.OutOrStdout(), !o.noColor)
	p.format = o.output
	return p
}

// withOneshot opens the store for one command and closes it afterwards.
func (o *rootOptions) withOneshot(cmd *cobra.Command, fn func(ctx context.Context, one *app.Oneshot) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
	defer cancel()
	one, err := app.OpenOneshot(ctx, o.configPath, o.logger())
	if err != nil {
		return err
	}
	defer func() { _ = one.Close(context.Background()) }()
	return fn(ctx, one)
}
