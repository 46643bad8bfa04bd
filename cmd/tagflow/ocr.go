package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Run the OCR daemon",
	Long: `Run the transcription stage.

The daemon polls Paperless-ngx for documents carrying the OCR queue tag,
renders each page, transcribes it with a vision-capable model, writes the
assembled text back to the document, and advances its pipeline tags.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cfgFile)
		if err != nil {
			return err
		}
		loop, err := app.ocrLoop()
		if err != nil {
			return err
		}
		app.watch()
		return ignoreCanceled(loop.Run(cmd.Context()))
	},
}

// ignoreCanceled maps a context-cancelled loop exit to a clean shutdown.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
