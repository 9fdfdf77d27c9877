package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lightup/internal/alarm"
	"lightup/internal/app"
	"lightup/internal/export"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	var format, file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write all alarms as JSON or an iCalendar file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
				all, err := one.Manager.AllAlarms(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if file != "" && file != "-" {
					f, err := os.Create(file)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				switch strings.ToLower(format) {
				case "json":
					return export.WriteJSON(w, export.NewCollection(export.TypeAll, all))
				case "ics", "ical":
					loc, err := one.Config.Scheduler.Location()
					if err != nil {
						return err
					}
					return export.WriteICS(w, all, time.Now().In(loc))
				default:
					return fmt.Errorf("unknown export format %q", format)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or ics")
	cmd.Flags().StringVar(&file, "file", "", "output file; stdout when empty")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Add alarms from a JSON export",
		Long:  "Reads a JSON array of alarms or an exported collection. Stored ids are ignored; each alarm gets a new one. Use - for stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			list, err := export.DecodeAlarms(r)
			if err != nil {
				return err
			}
			return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
				if replace {
					if err := one.Manager.DeleteAllAlarms(ctx); err != nil {
						return err
					}
				}
				added := make([]*alarm.Alarm, 0, len(list))
				// Imported rows are new writes; the file's timestamps are dropped.
				stamp := alarm.WithTimestamp(time.Now().Unix())
				for _, in := range list {
					a, err := one.Manager.AddAlarm(ctx, in.Hour, in.Minute, in.Repeat(), in.Enabled, alarm.WithLabel(in.Label), stamp)
					if err != nil {
						return fmt.Errorf("import alarm %02d:%02d: %w", in.Hour, in.Minute, err)
					}
					added = append(added, a)
				}
				return opts.printer(cmd).alarms(export.TypeAdd, added)
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "delete existing alarms first")
	return cmd
}
