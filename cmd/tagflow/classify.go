package main

import (
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Run the classification daemon",
	Long: `Run the classification stage.

The daemon polls Paperless-ngx for documents carrying the classification
queue tag, extracts title, correspondent, document type, date, language,
and tags from the transcription, and applies them to the document's
metadata. Documents without a transcription are requeued for OCR.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cfgFile)
		if err != nil {
			return err
		}
		loop, err := app.classifyLoop()
		if err != nil {
			return err
		}
		app.watch()
		return ignoreCanceled(loop.Run(cmd.Context()))
	},
}
