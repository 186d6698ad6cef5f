package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bft-labs/spbatch"
	"github.com/bft-labs/spbatch/pkg/log"
)

func execCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "exec FILE",
		Short: "Execute an operations file as one batch",
		Long: `Enqueue every operation of FILE into one batch and send it to SharePoint
and Microsoft Graph. Exits non-zero when any record failed.

Examples:
  spbatch exec ops.yaml --site-url https://contoso.sharepoint.com/sites/dev \
    --tenant-id <tenant> --client-id <app>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.cfg.ValidateRemote(); err != nil {
				return err
			}
			ops, err := LoadOps(args[0])
			if err != nil {
				return err
			}
			svc, err := spbatch.New(s.cfg, spbatch.WithLogger(log.NewZerologAdapterWithLogger(s.logger)))
			if err != nil {
				return fmt.Errorf("create client: %w", err)
			}

			rep, err := runOps(cmd.Context(), svc, ops.Operations)
			if rep != nil {
				render(s.out, rep)
			}
			if err != nil {
				return err
			}
			if n := rep.Failed(); n > 0 {
				return fmt.Errorf("%d of %d records failed", n, rep.Batch.Size())
			}
			return nil
		},
	}
}
