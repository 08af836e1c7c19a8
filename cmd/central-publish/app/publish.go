package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"centralpublisher/internal/deploymentid"
	"centralpublisher/internal/watch"
)

func newPublishCmd(o *options) *cobra.Command {
	var (
		idFile             string
		wait               bool
		waitUntilPublished bool
	)

	cmd := &cobra.Command{
		Use:   "publish [DEPLOYMENT_ID]",
		Short: "Publish a validated deployment",
		Long: `Trigger publication of a VALIDATED user-managed deployment.

With --wait the command polls until the deployment is PUBLISHING, or
PUBLISHED with --wait-until-published.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveID(args, idFile)
			if err != nil {
				return err
			}

			s, err := o.connect(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.client.Publish(cmd.Context(), id); err != nil {
				return fmt.Errorf("deployment %s: %w", id, err)
			}
			s.logger.Info("Publication requested", "deploymentId", id)

			if !wait && !waitUntilPublished {
				return nil
			}
			return s.watch(cmd.Context(), id, "", watch.NewPolicy(true, waitUntilPublished))
		},
	}

	cmd.Flags().StringVar(&idFile, "deployment-id-file", deploymentid.DefaultFile, "File holding the deployment id")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the deployment is PUBLISHING")
	cmd.Flags().BoolVar(&waitUntilPublished, "wait-until-published", false, "Wait until the deployment is PUBLISHED")

	return cmd
}
