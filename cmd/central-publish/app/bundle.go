package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"centralpublisher/internal/bundle"
)

func newBundleCmd(o *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "bundle STAGING_DIR",
		Short: "Zip a local staging repository into a bundle",
		Long: `Zip a Maven repository layout (group/artifact/version/files) into a bundle
ready for upload. maven-metadata.xml files and their checksums are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := bundle.Create(args[0], output)
			if err != nil {
				return err
			}
			o.logger.Info("Bundle created", "bundle", output, "files", n)
			fmt.Fprintln(cmd.OutOrStdout(), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "bundle.zip", "Bundle file to write")

	return cmd
}
