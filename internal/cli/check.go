package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cronpump/internal/app"
	"cronpump/internal/config"
	"cronpump/internal/task/rule"
	"cronpump/internal/task/scheduler"
)

// SchedulePreview is one line of `check` output.
type SchedulePreview struct {
	Name     string      `json:"name"`
	Fields   string      `json:"fields"`
	Active   bool        `json:"active"`
	Action   string      `json:"action"`
	Retry    string      `json:"retry,omitempty"`
	Next     []time.Time `json:"next"`
	Location string      `json:"location"`
}

func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	var next int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and preview upcoming runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			previews, err := checkConfig(rootOpts.ConfigPath, time.Now(), next)
			if err != nil {
				return err
			}
			return writeChecks(cmd.OutOrStdout(), rootOpts.Format, previews)
		},
	}
	cmd.Flags().IntVarP(&next, "next", "n", 3, "number of upcoming fire times to show")
	return cmd
}

func checkConfig(path string, from time.Time, n int) ([]SchedulePreview, error) {
	cfg, err := config.NewManager(path).Parse()
	if err != nil {
		return nil, err
	}
	if err := app.Validate(cfg); err != nil {
		return nil, err
	}

	noop := rule.ExecuteFunc(func(context.Context, *rule.Match) bool { return true })
	out := make([]SchedulePreview, 0, len(cfg.Schedules))
	for _, sc := range cfg.Schedules {
		opts, err := sc.RuleOptions(cfg.Runtime.Timezone)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		r, err := rule.New(append(opts, noop)...)
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		c, err := r.Compile()
		if err != nil {
			return nil, fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
		p := SchedulePreview{
			Name:     r.Name(),
			Fields:   r.String(),
			Active:   r.Active(),
			Action:   strings.ToLower(sc.Action.Type),
			Location: r.Location().String(),
			Next:     []time.Time{},
		}
		if sc.Retry != nil {
			p.Retry = fmt.Sprintf("%d attempts, base %ds", sc.Retry.MaxAttempts, sc.Retry.BaseIntervalSeconds)
		}
		if r.Active() && n > 0 {
			p.Next = scheduler.PreviewNext(c, from, n, 366*24*time.Hour)
		}
		out = append(out, p)
	}
	return out, nil
}

func writeChecks(w io.Writer, format string, previews []SchedulePreview) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(previews)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tACTION\tACTIVE\tFIELDS\tNEXT")
	for _, p := range previews {
		next := make([]string, len(p.Next))
		loc, _ := time.LoadLocation(p.Location)
		for i, t := range p.Next {
			if loc != nil {
				t = t.In(loc)
			}
			next[i] = t.Format(time.RFC3339)
		}
		nextCol := strings.Join(next, ", ")
		if nextCol == "" {
			nextCol = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", p.Name, p.Action, p.Active, p.Fields, nextCol)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "config ok: %d schedule(s)\n", len(previews))
	return err
}
