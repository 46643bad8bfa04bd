package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run both pipeline stages in one process",
	Long: `Run the OCR and classification stages together.

Each stage keeps its own polling loop and worker pool; they share the
store client, retry policy, and model backend configuration. The process
exits when either loop fails or the context is cancelled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cfgFile)
		if err != nil {
			return err
		}
		ocrLoop, err := app.ocrLoop()
		if err != nil {
			return err
		}
		classifyLoop, err := app.classifyLoop()
		if err != nil {
			return err
		}

		app.watch()
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error { return ocrLoop.Run(ctx) })
		g.Go(func() error { return classifyLoop.Run(ctx) })
		return ignoreCanceled(g.Wait())
	},
}
