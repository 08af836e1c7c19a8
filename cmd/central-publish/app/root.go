// Package app implements the central-publish command tree.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/config"
)

// options carries settings shared by every subcommand.
type options struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd builds the command tree. Flag defaults come from CENTRAL_*
// environment variables.
func NewRootCmd() *cobra.Command {
	o := &options{cfg: config.LoadFromEnv(), logger: slog.Default()}

	cmd := &cobra.Command{
		Use:   "central-publish",
		Short: "Publish bundles to the Maven Central Publisher Portal",
		Long: `central-publish uploads deployment bundles to the Maven Central Publisher Portal
and polls each deployment until it is validated or published.

Examples:
  # Upload and let the portal publish automatically, waiting until it is live
  central-publish upload build/bundle.zip --name com.example:lib:1.0 --publish --wait-until-published

  # Upload for manual review, then publish later
  central-publish upload build/bundle.zip
  central-publish publish --deployment-id-file deployment-id.txt --wait

  # Zip a local staging repository into a bundle
  central-publish bundle build/staging -o build/bundle.zip`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setupLogging(cmd.ErrOrStderr())
		},
	}

	o.addFlags(cmd.PersistentFlags())

	cmd.AddCommand(newUploadCmd(o))
	cmd.AddCommand(newStatusCmd(o))
	cmd.AddCommand(newWaitCmd(o))
	cmd.AddCommand(newPublishCmd(o))
	cmd.AddCommand(newBundleCmd(o))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// addFlags registers connection, polling and logging flags.
func (o *options) addFlags(fs *pflag.FlagSet) {
	c := o.cfg
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "Publisher Portal base URL (env: CENTRAL_BASE_URL)")
	fs.StringVar(&c.Username, "username", c.Username, "Portal user token name (env: CENTRAL_USERNAME)")
	fs.StringVar(&c.Password, "password", c.Password, "Portal user token password (env: CENTRAL_PASSWORD, CENTRAL_PASSWORD_FILE)")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Pause between status polls (env: CENTRAL_POLL_INTERVAL)")
	fs.IntVar(&c.MaxPollErrors, "max-poll-errors", c.MaxPollErrors, "Consecutive failed status polls tolerated (env: CENTRAL_MAX_POLL_ERRORS)")
	fs.DurationVar(&c.PollBackoffMax, "poll-backoff-max", c.PollBackoffMax, "Grow the poll interval up to this while the state is unchanged; 0 disables (env: CENTRAL_POLL_BACKOFF_MAX)")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "Timeout for a single portal request (env: CENTRAL_HTTP_TIMEOUT)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn or error (env: CENTRAL_LOG_LEVEL)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: text or json (env: CENTRAL_LOG_FORMAT)")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Serve Prometheus metrics on this address while running (env: CENTRAL_METRICS_ADDR)")
	fs.StringVar(&c.NotifyURL, "notify-url", c.NotifyURL, "POST a CloudEvent with each deployment outcome to this URL (env: CENTRAL_NOTIFY_URL)")
}

// setupLogging installs the command logger on w.
func (o *options) setupLogging(w io.Writer) error {
	level, err := config.ParseLogLevel(o.cfg.LogLevel)
	if err != nil {
		return apperrors.Validation("logLevel", err.Error())
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(o.cfg.LogFormat) {
	case "", "text":
		o.logger = slog.New(slog.NewTextHandler(w, handlerOpts))
	case "json":
		o.logger = slog.New(slog.NewJSONHandler(w, handlerOpts))
	default:
		return apperrors.Validation("logFormat", fmt.Sprintf("unsupported log format %q (text or json)", o.cfg.LogFormat))
	}
	return nil
}
