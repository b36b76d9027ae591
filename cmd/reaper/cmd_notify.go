package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/spf13/cobra"

	"github.com/yairfalse/reaper/notifier"
)

var (
	notifyOnce     bool
	notifyLogGroup string
	notifyWebhook  string
	notifyAccount  string
)

// notifyCmd represents the notify command
var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Forward termination markers to Slack",
	Long: `Tail the engine's log group for termination marker lines and forward
each one to a Slack webhook.

The notifier is decoupled from the termination engine: it only reads
what the engine already logged. Delivery is best-effort; a failed
forward is logged and skipped, never retried.`,
	Example: `  reaper notify --log-group /aws/lambda/reaper   # Poll continuously
  reaper notify --once                           # Single poll, then exit
  reaper notify --webhook https://hooks.slack... # Override config webhook`,
	RunE: runNotify,
}

func init() {
	rootCmd.AddCommand(notifyCmd)

	notifyCmd.Flags().BoolVar(&notifyOnce, "once", false, "Poll once and exit")
	notifyCmd.Flags().StringVar(&notifyLogGroup, "log-group", "", "Log group to tail (overrides config)")
	notifyCmd.Flags().StringVar(&notifyWebhook, "webhook", "", "Slack webhook URL (overrides config)")
	notifyCmd.Flags().StringVar(&notifyAccount, "account", "", "Account label shown in notifications")
}

func runNotify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := setupRuntime(ctx, "reaper-notify")
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if notifyLogGroup != "" {
		rt.cfg.Notifier.LogGroup = notifyLogGroup
	}
	if notifyWebhook != "" {
		rt.cfg.Notifier.WebhookURL = notifyWebhook
	}
	if rt.cfg.Notifier.LogGroup == "" {
		return fmt.Errorf("log group is required (--log-group or config)")
	}
	if rt.cfg.Notifier.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required (--webhook or config)")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(rt.cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}

	n := notifier.New(
		cloudwatchlogs.NewFromConfig(awsCfg),
		notifier.NewSlackForwarder(rt.cfg.Notifier.WebhookURL, notifyAccount),
		rt.logger,
		rt.cfg.Notifier,
	)

	if notifyOnce {
		count, err := n.Poll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Forwarded %d event(s)\n", count)
		return nil
	}

	rt.logger.WithContext(ctx).Info().
		Str("log_group", rt.cfg.Notifier.LogGroup).
		Dur("poll_interval", rt.cfg.Notifier.PollInterval).
		Msg("notifier starting")

	if err := n.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
