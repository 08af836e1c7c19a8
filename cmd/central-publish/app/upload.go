package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/bundle"
	"centralpublisher/internal/deploymentid"
	"centralpublisher/internal/portal"
	"centralpublisher/internal/watch"
)

type uploadOptions struct {
	name               string
	publish            bool
	waitUntilPublished bool
	progress           bool
	noWait             bool
	idFile             string
}

func newUploadCmd(o *options) *cobra.Command {
	opts := &uploadOptions{}

	cmd := &cobra.Command{
		Use:   "upload BUNDLE...",
		Short: "Upload bundles and wait for their deployments",
		Long: `Upload one or more bundles to the Publisher Portal.

The deployment id is written to --deployment-id-file as soon as the upload
succeeds. With several bundles each id goes to "<bundle>.<id file name>" next
to --deployment-id-file, and the bundles are uploaded and watched concurrently.

Without --publish the command succeeds once a deployment is VALIDATED. With
--publish the portal publishes automatically and the command succeeds on
PUBLISHING, or on PUBLISHED with --wait-until-published.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(cmd.Context(), o, opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Deployment name shown in the portal")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "Publish automatically once validated")
	cmd.Flags().BoolVar(&opts.waitUntilPublished, "wait-until-published", false, "With --publish, wait for PUBLISHED instead of PUBLISHING")
	cmd.Flags().BoolVar(&opts.progress, "progress", false, "Show an upload progress bar on stderr")
	cmd.Flags().BoolVar(&opts.noWait, "no-wait", false, "Exit after the upload without polling the deployment")
	cmd.Flags().StringVar(&opts.idFile, "deployment-id-file", deploymentid.DefaultFile, "File receiving the deployment id")

	return cmd
}

func runUpload(ctx context.Context, o *options, opts *uploadOptions, args []string, out, errOut io.Writer) error {
	bundles := make([]portal.Bundle, 0, len(args))
	idFiles := make([]string, 0, len(args))
	seen := make(map[string]bool, len(args))
	for _, arg := range args {
		b, err := bundle.Open(arg)
		if err != nil {
			return err
		}
		idFile := opts.idFile
		if len(args) > 1 {
			idFile = deploymentid.PathFor(opts.idFile, b.Name)
		}
		if seen[idFile] {
			return apperrors.Validation("bundle", fmt.Sprintf("bundles share the deployment id file %s; give them distinct file names", idFile))
		}
		seen[idFile] = true
		bundles = append(bundles, b)
		idFiles = append(idFiles, idFile)
	}

	var progress io.Writer
	if opts.progress {
		progress = errOut
	}
	s, err := o.connect(ctx, progress)
	if err != nil {
		return err
	}
	defer s.Close()

	out = &syncWriter{w: out}
	policy := watch.NewPolicy(opts.publish, opts.waitUntilPublished)
	if opts.waitUntilPublished && !opts.publish {
		s.logger.Warn("--wait-until-published has no effect without --publish")
	}

	var g errgroup.Group
	errs := make([]error, len(bundles))
	for i := range bundles {
		g.Go(func() error {
			errs[i] = s.uploadAndWatch(ctx, opts, bundles[i], idFiles[i], policy, out)
			if errs[i] != nil && len(bundles) > 1 {
				s.logger.Error("Deployment session failed", "bundle", bundles[i].Name, "error", errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (s *session) uploadAndWatch(ctx context.Context, opts *uploadOptions, b portal.Bundle, idFile string, policy watch.Policy, out io.Writer) error {
	s.logger.Info("Uploading bundle", "bundle", b.Name, "size", b.Size, "url", s.client.BaseURL())

	id, err := s.client.Upload(ctx, b, opts.name, opts.publish)
	if err != nil {
		return fmt.Errorf("upload %s: %w", b.Name, err)
	}
	if err := deploymentid.Write(idFile, id); err != nil {
		return fmt.Errorf("deployment %s: %w", id, err)
	}
	s.logger.Info("Bundle uploaded", "bundle", b.Name, "deploymentId", id, "idFile", idFile)
	fmt.Fprintln(out, id)

	if opts.noWait {
		return nil
	}
	return s.watch(ctx, id, b.Name, policy)
}
