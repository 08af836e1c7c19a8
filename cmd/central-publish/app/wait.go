package app

import (
	"github.com/spf13/cobra"

	"centralpublisher/internal/deploymentid"
	"centralpublisher/internal/watch"
)

func newWaitCmd(o *options) *cobra.Command {
	var (
		idFile             string
		publish            bool
		waitUntilPublished bool
	)

	cmd := &cobra.Command{
		Use:   "wait [DEPLOYMENT_ID]",
		Short: "Wait for an existing deployment to finish",
		Long: `Resume polling a deployment that was already uploaded.

Pass --publish when the deployment publishes automatically, so that
PUBLISHING and PUBLISHED count as success rather than failure.`,
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

			return s.watch(cmd.Context(), id, "", watch.NewPolicy(publish, waitUntilPublished))
		},
	}

	cmd.Flags().StringVar(&idFile, "deployment-id-file", deploymentid.DefaultFile, "File holding the deployment id")
	cmd.Flags().BoolVar(&publish, "publish", false, "The deployment publishes automatically")
	cmd.Flags().BoolVar(&waitUntilPublished, "wait-until-published", false, "With --publish, wait for PUBLISHED instead of PUBLISHING")

	return cmd
}
