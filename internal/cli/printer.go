package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"go.yaml.in/yaml/v3"

	"lightup/internal/alarm"
	"lightup/internal/export"
)

type printer struct {
	w        io.Writer
	format   string
	useColor bool

	header *color.Color
	on     *color.Color
	off    *color.Color
	ok     *color.Color
	bad    *color.Color
}

func newPrinter(w io.Writer, useColor bool) *printer {
	p := &printer{
		w:        w,
		format:   "table",
		useColor: useColor,
		header:   color.New(color.FgHiCyan, color.Bold),
		on:       color.New(color.FgGreen),
		off:      color.New(color.FgHiBlack),
		ok:       color.New(color.FgGreen, color.Bold),
		bad:      color.New(color.FgRed, color.Bold),
	}
	for _, c := range []*color.Color{p.header, p.on, p.off, p.ok, p.bad} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// structured writes v as JSON or YAML. It reports false for table output.
func (p *printer) structured(v any) (bool, error) {
	switch strings.ToLower(p.format) {
	case "json":
		return true, export.WriteJSON(p.w, v)
	case "yaml", "yml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	case "", "table":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q", p.format)
	}
}

func (p *printer) alarms(dataType string, list []*alarm.Alarm) error {
	if done, err := p.structured(export.NewCollection(dataType, list)); done {
		return err
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(p.w, "no alarms")
		return err
	}
	p.header.Fprintf(p.w, "%s: %d\n", dataType, len(list))

	headers := []string{"ID", "Time", "Repeat", "Label", "Enabled"}
	table := tablewriter.NewWriter(p.w)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader(headers)
	if p.useColor {
		colors := make([]tablewriter.Colors, len(headers))
		for i := range colors {
			colors[i] = tablewriter.Colors{tablewriter.Bold, tablewriter.FgHiCyanColor}
		}
		table.SetHeaderColor(colors...)
	}
	for _, a := range list {
		enabled := p.off.Sprint("no")
		if a.Enabled() {
			enabled = p.on.Sprint("yes")
		}
		table.Append([]string{
			strconv.FormatInt(a.ID(), 10),
			fmt.Sprintf("%02d:%02d", a.Hour(), a.Minute()),
			a.Repeat().String(),
			a.Label(),
			enabled,
		})
	}
	table.Render()
	return nil
}

func (p *printer) next(a *alarm.Alarm, minutes int) error {
	if done, err := p.structured(export.NewNext(a, minutes)); done {
		return err
	}
	if a == nil {
		_, err := fmt.Fprintln(p.w, "no active alarms")
		return err
	}
	_, err := fmt.Fprintf(p.w, "%s\nrings in %s\n", a, p.header.Sprint(formatMinutes(minutes)))
	return err
}

func (p *printer) successf(format string, args ...any) {
	fmt.Fprintln(p.w, p.ok.Sprint("✓ ")+fmt.Sprintf(format, args...))
}

func (p *printer) errorf(format string, args ...any) {
	fmt.Fprintln(p.w, p.bad.Sprint("✗ ")+fmt.Sprintf(format, args...))
}

func formatMinutes(m int) string {
	d, rem := m/alarm.MinutesPerDay, m%alarm.MinutesPerDay
	h, mins := rem/60, rem%60
	switch {
	case d > 0:
		return fmt.Sprintf("%dd %dh %dm", d, h, mins)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
