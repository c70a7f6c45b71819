package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasmvm/validator"
)

func getCmdValidate(c *rootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.wasm>...",
		Short: "Decode and validate modules",
		Long: `Decode and validate each module, printing OK or the first error.

  The exit status is non-zero when any module is rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if err := c.validateFile(path); err != nil {
					fmt.Fprintf(c.stdout, "%s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(c.stdout, "%s: OK\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d modules failed validation", failed, len(args))
			}
			return nil
		},
	}
}

func (c *rootCommand) validateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m, err := validator.Validate(data)
	if err != nil {
		return err
	}
	c.logger.Debug("module valid", zap.String("file", path), zap.Int("functions", len(m.Funcs)))
	return nil
}
