package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"centralpublisher/internal/deploymentid"
)

func newStatusCmd(o *options) *cobra.Command {
	var idFile string

	cmd := &cobra.Command{
		Use:   "status [DEPLOYMENT_ID]",
		Short: "Print the current status of a deployment",
		Long: `Fetch one status snapshot and print the portal's JSON response.

The deployment id is read from --deployment-id-file when not given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveID(args, idFile)
			if err != nil {
				return err
			}
			return runStatus(cmd.Context(), o, id, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&idFile, "deployment-id-file", deploymentid.DefaultFile, "File holding the deployment id")

	return cmd
}

func runStatus(ctx context.Context, o *options, id string, out io.Writer) error {
	s, err := o.connect(ctx, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	status, err := s.client.Status(ctx, id)
	if err != nil {
		return fmt.Errorf("deployment %s: %w", id, err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, status.Raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(status.Raw)
	}
	buf.WriteByte('\n')
	_, err = out.Write(buf.Bytes())
	return err
}
