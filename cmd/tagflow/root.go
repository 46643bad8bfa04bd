package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/tagflow/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tagflow",
	Short: "Tag-driven document pipeline for Paperless-ngx with LLM-powered OCR",
	Long: `Tagflow polls a Paperless-ngx instance for documents carrying queue tags
and moves them through a two-stage pipeline:

  - OCR: render each page, transcribe it with a vision-capable model, and
    write the assembled text back to the document
  - Classify: extract title, correspondent, type, date, language, and tags
    from the transcription and apply them to the document's metadata

Documents advance through the pipeline purely by tag transitions, so the
daemon can be stopped and restarted at any time without losing work.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.tagflow/config.yaml)",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ocrCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
}
