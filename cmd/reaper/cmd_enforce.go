package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yairfalse/reaper/enforcer"
	"github.com/yairfalse/reaper/providers/aws"
	"github.com/yairfalse/reaper/wal"
)

var (
	enforceEvent  string
	enforceRegion string
)

// enforceCmd represents the enforce command
var enforceCmd = &cobra.Command{
	Use:   "enforce [instance-id]",
	Short: "Enforce the lifetime tag contract on one instance",
	Long: `Watch a freshly launched instance until it carries a usable expiry.

The watcher polls the instance's tags. An explicit termination_date
wins as-is; a lifetime tag (e.g. "2d") is converted into one. An
instance that reaches the wait budget without a valid expiry is
terminated.

Transport failures never terminate anything; they exit non-zero so
the platform retries the invocation.`,
	Example: `  reaper enforce i-0123456789abcdef0       # Watch one instance
  reaper enforce --event event.json        # Instance ID from a state-change event
  LIVE_MODE=true reaper enforce i-01234... # Armed, will tag and terminate`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnforce,
}

func init() {
	rootCmd.AddCommand(enforceCmd)

	enforceCmd.Flags().StringVarP(&enforceEvent, "event", "e", "", "Path to an instance state-change event JSON")
	enforceCmd.Flags().StringVarP(&enforceRegion, "region", "r", "", "AWS region (overrides config)")
}

// stateChangeEvent is the slice of an EC2 instance state-change
// notification the watcher cares about.
type stateChangeEvent struct {
	Detail struct {
		InstanceID string `json:"instance-id"`
	} `json:"detail"`
}

func runEnforce(cmd *cobra.Command, args []string) error {
	instanceID, err := enforceInstanceID(args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := setupRuntime(ctx, "reaper-enforce")
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if enforceRegion != "" {
		rt.cfg.Region = enforceRegion
	}

	provider, err := aws.NewProvider(ctx, rt.cfg.Region)
	if err != nil {
		return fmt.Errorf("failed to create aws provider: %w", err)
	}

	audit, err := wal.Open(rt.cfg.WALDir)
	if err != nil {
		return fmt.Errorf("failed to open wal: %w", err)
	}
	defer func() { _ = audit.Close() }()

	watcher := enforcer.New(provider, rt.logger, audit, enforcer.Options{
		WaitBudget:   rt.cfg.WaitBudget,
		PollInterval: rt.cfg.PollInterval,
		LiveMode:     rt.cfg.LiveMode,
	})

	result, err := watcher.Enforce(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("enforcement failed: %w", err)
	}

	switch result.State {
	case enforcer.StateResolved:
		fmt.Printf("Resolved: %s expires %s (%d polls)\n",
			result.InstanceID, result.Expiry.Format("2006-01-02T15:04:05Z07:00"), result.Polls)
	case enforcer.StateTimedOut:
		mode := "dry-run"
		if rt.cfg.LiveMode {
			mode = "live"
		}
		fmt.Printf("Timed out: %s terminated (%s, reason=%s, %d polls)\n",
			result.InstanceID, mode, result.Reason, result.Polls)
	}
	return nil
}

func enforceInstanceID(args []string) (string, error) {
	if enforceEvent != "" {
		data, err := os.ReadFile(enforceEvent) // #nosec G304 -- path is intentional user input
		if err != nil {
			return "", fmt.Errorf("failed to read event file: %w", err)
		}
		var event stateChangeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return "", fmt.Errorf("failed to parse event: %w", err)
		}
		if event.Detail.InstanceID == "" {
			return "", fmt.Errorf("event has no detail.instance-id")
		}
		return event.Detail.InstanceID, nil
	}
	if len(args) != 1 {
		return "", fmt.Errorf("instance ID required (argument or --event)")
	}
	return args[0], nil
}
