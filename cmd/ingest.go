package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/borgius/n8n-local/internal/jobspy"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file|->",
		Short: "Upsert jobs from a JSON file",
		Long: `Reads a JobSpy response ({"jobs": [...]}) or a bare array of job
records from a file, or stdin when the argument is "-", and upserts every
valid record. Invalid records are logged and skipped unless ingest.strict
is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			body, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			batch, err := jobspy.DecodeResponse(body)
			if err != nil {
				return fmt.Errorf("decode %s: %w", args[0], err)
			}
			res, err := appInstance.Service().Ingest(cmd.Context(), batch.Jobs)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", args[0], err)
			}
			appInstance.Logger().Info("ingest finished",
				zap.String("file", args[0]),
				zap.Int("received", res.Received),
				zap.Int("persisted", res.Persisted),
			)
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return body, nil
}
