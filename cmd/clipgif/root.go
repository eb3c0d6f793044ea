package main

import "github.com/spf13/cobra"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// skipConfigAnnotation marks commands that load (or write) the config
// themselves instead of through PersistentPreRunE.
const skipConfigAnnotation = "skipConfigLoad"

var skipConfig = map[string]string{skipConfigAnnotation: "true"}

func newRootCommand() *cobra.Command {
	var configFlag string
	return newRootCommandWith(newCommandContext(&configFlag), &configFlag)
}

func newRootCommandWith(ctx *commandContext, configFlag *string) *cobra.Command {
	root := &cobra.Command{
		Use:           "clipgif",
		Short:         "Capture video clips as animated GIFs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			for c := cmd; c != nil; c = c.Parent() {
				if c.Annotations[skipConfigAnnotation] == "true" {
					return nil
				}
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(configFlag, "config", "c", "", "Configuration file path")
	root.AddCommand(
		newCaptureCommand(ctx),
		newBatchCommand(ctx),
		newHistoryCommand(ctx),
		newDoctorCommand(ctx),
		newConfigCommand(ctx),
	)
	return root
}
