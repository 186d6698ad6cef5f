package cli

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bft-labs/spbatch"
	"github.com/bft-labs/spbatch/internal/adapters/memory"
	"github.com/bft-labs/spbatch/pkg/log"
)

func planCmd(s *state) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "plan FILE",
		Short: "Show how an operations file would be batched",
		Long: `Enqueue every operation of FILE into one batch and execute it against an
in-memory transport that answers every call with 200. Nothing is sent over
the network. The output lists the sub-batches and which operations share a
record after deduplication.

Examples:
  spbatch plan ops.yaml
  spbatch plan ops.yaml --disable-graph
  spbatch plan ops.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			if err := s.plan(ctx, path); err != nil {
				if !watch {
					return err
				}
				s.logger.Error().Err(err).Msg("plan")
			}
			if !watch {
				return nil
			}

			var mu sync.Mutex
			w, err := newFileWatcher(path, watchDebounce, s.logger, func() {
				mu.Lock()
				defer mu.Unlock()
				if err := s.plan(ctx, path); err != nil {
					s.logger.Error().Err(err).Msg("plan")
				}
			})
			if err != nil {
				return err
			}
			s.logger.Info().Str("file", path).Msg("watching for changes")
			w.Run(ctx)
			return nil
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "re-plan whenever FILE changes")
	return cmd
}

func (s *state) plan(ctx context.Context, path string) error {
	ops, err := LoadOps(path)
	if err != nil {
		return err
	}
	svc, err := spbatch.New(s.cfg,
		spbatch.WithTransport(memory.New()),
		spbatch.WithLogger(log.NewZerologAdapterWithLogger(s.logger)),
	)
	if err != nil {
		return err
	}
	rep, err := runOps(ctx, svc, ops.Operations)
	if rep != nil {
		render(s.out, rep)
	}
	return err
}
