package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lightup/internal/config"
	"lightup/internal/task/manager"
)

// reconcileReply mirrors the daemon's POST /reconcile body.
type reconcileReply struct {
	manager.Report
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// newReconcileCommand asks a running daemon to check its alarm tasks.
// One-shot commands never run tasks, so there is nothing to check locally.
func newReconcileCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Ask the running daemon to reconcile alarm tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, err := config.NewManager(opts.configPath).Load()
				if err != nil {
					return err
				}
				addr = cfg.HTTP.Addr
			}
			rep, err := postReconcile(cmd.Context(), addr)
			if err != nil {
				return err
			}
			p := opts.printer(cmd)
			if done, err := p.structured(rep); done {
				return err
			}
			if !rep.Success {
				p.errorf("reconcile failed: %s", rep.Error)
			} else if rep.Clean {
				p.successf("clean: %d running of %d expected", rep.Running, rep.Expected)
			} else {
				p.successf("repaired: %d running of %d expected", rep.Running, rep.Expected)
			}
			for _, d := range rep.Drift {
				fmt.Fprintf(p.w, "  alarm %d: %s\n", d.AlarmID, d.Reason)
			}
			if !rep.Success {
				return fmt.Errorf("daemon reported: %s", rep.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "daemon HTTP address; defaults to http.addr from the config")
	return cmd
}

func postReconcile(ctx context.Context, addr string) (*reconcileReply, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	url := strings.TrimRight(addr, "/")
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/reconcile", nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: commandTimeout + time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()
	var out reconcileReply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode reconcile reply (status %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}
