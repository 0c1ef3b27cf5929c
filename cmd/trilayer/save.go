package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trilayer/trilayer/internal/history"
)

// trilayer save
func saveCmd() *cobra.Command {
	var (
		client     string
		worker     string
		projectDir string
		prompt     string
		feedback   string
		logs       string
		imagePaths []string
	)

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Record a feedback exchange",
		Long:  "Save one AI prompt / user feedback exchange under the isolation derived from --client, --worker, and --project-dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolving working directory: %w", err)
				}
				projectDir = wd
			}

			images := make([]history.FeedbackImage, 0, len(imagePaths))
			for _, p := range imagePaths {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("reading image %s: %w", p, err)
				}
				images = append(images, history.FeedbackImage{
					Path: p,
					Name: filepath.Base(p),
					Data: data,
				})
			}

			sessionID, err := manager.SaveFeedbackSession(
				client, worker, projectDir, prompt, feedback, logs, images)
			if err != nil {
				return err
			}

			fmt.Printf("Saved session %s\n", color.GreenString(sessionID))
			if len(images) > 0 {
				fmt.Printf("  Attached %d image(s)\n", len(images))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "AI client application name")
	cmd.Flags().StringVar(&worker, "worker", "", "Worker environment label")
	cmd.Flags().StringVar(&projectDir, "project-dir", "", "Project directory (default: current directory)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "AI prompt text (required)")
	cmd.Flags().StringVar(&feedback, "feedback", "", "User feedback text")
	cmd.Flags().StringVar(&logs, "logs", "", "Command log text")
	cmd.Flags().StringArrayVar(&imagePaths, "image", nil, "Image file to attach (repeatable)")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("worker")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}
