package main

import (
	"github.com/spf13/cobra"

	"vidsub/internal/inference"
	"vidsub/internal/logging"
)

// newWorkerCommand serves one capability over stdin/stdout. "vidsub run
// --isolated" starts it as a child process.
func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "worker <transcription|translation>",
		Short:     "Serve an inference capability over stdio",
		Hidden:    true,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{capabilityTranscription, capabilityTranslation},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			logger = logging.NewComponentLogger(logger, "worker-"+args[0])
			capability, err := newCapability(args[0], cfg, logger)
			if err != nil {
				return err
			}
			logger.Debug("worker serving", logging.String("capability", capability.Name()))
			return inference.ServeStream(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), capability,
				inference.WithWorkerLogger(logger))
		},
	}
}
