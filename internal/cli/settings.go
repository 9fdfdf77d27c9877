package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"lightup/internal/app"
	"lightup/internal/storage"
)

// newSettingCommand shows or sets one of the global minute settings.
func newSettingCommand(opts *rootOptions, name string) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   name + " [minutes]",
		Short: fmt.Sprintf("Show or set the %s minutes", name),
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withOneshot(cmd, func(ctx context.Context, one *app.Oneshot) error {
				m := one.Manager
				switch {
				case reset:
					if err := m.ResetSettings(ctx); err != nil {
						return err
					}
				case len(args) == 1:
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return fmt.Errorf("minutes must be a number: %q", args[0])
					}
					set := m.SetSnoozeMinutes
					if name == "prealert" {
						set = m.SetPrealertMinutes
					}
					if err := set(ctx, n); err != nil {
						return err
					}
				}
				s, err := m.Settings(ctx)
				if err != nil {
					return err
				}
				return printSettings(opts.printer(cmd), name, s)
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "restore both settings to their defaults")
	return cmd
}

func printSettings(p *printer, name string, s storage.Settings) error {
	if done, err := p.structured(s); done {
		return err
	}
	v := s.SnoozeMinutes
	if name == "prealert" {
		v = s.PrealertMinutes
	}
	_, err := fmt.Fprintf(p.w, "%s: %s\n", name, p.header.Sprintf("%d min", v))
	return err
}
