package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lightup/internal/alarm"
	"lightup/internal/app"
	"lightup/internal/export"
)

func newAlarmsCommand(opts *rootOptions) *cobra.Command {
	list := func(cmd *cobra.Command, _ []string) error {
		return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
			all, err := one.Manager.AllAlarms(ctx)
			if err != nil {
				return err
			}
			return opts.printer(cmd).alarms(export.TypeAll, all)
		})
	}
	cmd := &cobra.Command{
		Use:   "alarms",
		Short: "List and change alarms",
		Args:  cobra.NoArgs,
		RunE:  list,
	}
	cmd.AddCommand(
		&cobra.Command{Use: "list", Short: "List all alarms", Args: cobra.NoArgs, RunE: list},
		&cobra.Command{
			Use:   "active",
			Short: "List enabled alarms with at least one day",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
					active, err := one.Manager.ActiveAlarms(ctx)
					if err != nil {
						return err
					}
					return opts.printer(cmd).alarms(export.TypeActive, active)
				})
			},
		},
		&cobra.Command{
			Use:   "next",
			Short: "Show the alarm that rings next",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
					a, mins, err := one.Manager.NextAlarm(ctx)
					if err != nil {
						return err
					}
					return opts.printer(cmd).next(a, mins)
				})
			},
		},
		newAddCommand(opts),
		newEditCommand(opts),
		newDeleteCommand(opts),
		newDeleteAllCommand(opts),
	)
	return cmd
}

func newAddCommand(opts *rootOptions) *cobra.Command {
	var (
		days     string
		label    string
		disabled bool
	)
	cmd := &cobra.Command{
		Use:     "add HH:MM",
		Short:   "Add an alarm",
		Example: "  lightup alarms add 07:30 --days weekdays --label Work",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, m, err := parseClock(args[0])
			if err != nil {
				return err
			}
			repeat, err := alarm.ParseRepeat(days)
			if err != nil {
				return err
			}
			return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
				a, err := one.Manager.AddAlarm(ctx, h, m, repeat, !disabled, alarm.WithLabel(label))
				if err != nil {
					return err
				}
				p := opts.printer(cmd)
				if done, err := p.structured(export.FromAlarm(a)); done {
					return err
				}
				p.successf("added %s", a)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&days, "days", "d", "daily", "repeat days: mon,thu | 1001000 | daily | weekdays | weekend")
	cmd.Flags().StringVarP(&label, "label", "l", "", "alarm label")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the alarm disabled")
	return cmd
}

func newEditCommand(opts *rootOptions) *cobra.Command {
	var (
		clock, days, label string
		enable, disable    bool
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change fields of an alarm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var p alarm.Patch
			if cmd.Flags().Changed("time") {
				h, m, err := parseClock(clock)
				if err != nil {
					return err
				}
				p.Hour, p.Minute = &h, &m
			}
			if cmd.Flags().Changed("days") {
				r, err := alarm.ParseRepeat(days)
				if err != nil {
					return err
				}
				p.Repeat = &r
			}
			if cmd.Flags().Changed("label") {
				p.Label = &label
			}
			switch {
			case enable && disable:
				return fmt.Errorf("--enable and --disable are exclusive")
			case enable:
				p.Enabled = alarm.Ref(true)
			case disable:
				p.Enabled = alarm.Ref(false)
			}
			if p.IsEmpty() {
				return fmt.Errorf("nothing to change")
			}
			return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
				a, err := one.Manager.EditAlarm(ctx, id, p)
				if a == nil {
					return err
				}
				pr := opts.printer(cmd)
				if err != nil {
					pr.errorf("partially applied: %v", err)
				}
				if done, serr := pr.structured(export.FromAlarm(a)); done {
					return serr
				}
				pr.successf("now %s", a)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&clock, "time", "t", "", "new time as HH:MM")
	cmd.Flags().StringVarP(&days, "days", "d", "", "new repeat days")
	cmd.Flags().StringVarP(&label, "label", "l", "", "new label")
	cmd.Flags().BoolVar(&enable, "enable", false, "enable the alarm")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable the alarm")
	return cmd
}

func newDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Delete an alarm",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
				if err := one.Manager.DeleteAlarm(ctx, id); err != nil {
					return err
				}
				opts.printer(cmd).successf("deleted alarm %d", id)
				return nil
			})
		},
	}
}

func newDeleteAllCommand(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every alarm",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete all alarms without --yes")
			}
			return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
				if err := one.Manager.DeleteAllAlarms(ctx); err != nil {
					return err
				}
				opts.printer(cmd).successf("deleted all alarms")
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm")
	return cmd
}

// parseClock reads "HH:MM". Range checks are left to the alarm.
func parseClock(s string) (hour, minute int, err error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, alarm.Errorf(alarm.ErrInvalid, "time %q is not HH:MM", s)
	}
	if hour, err = strconv.Atoi(hs); err != nil {
		return 0, 0, alarm.Errorf(alarm.ErrInvalid, "time %q is not HH:MM", s)
	}
	if minute, err = strconv.Atoi(ms); err != nil {
		return 0, 0, alarm.Errorf(alarm.ErrInvalid, "time %q is not HH:MM", s)
	}
	return hour, minute, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, alarm.Errorf(alarm.ErrInvalid, "bad alarm id %q", s)
	}
	return id, nil
}
