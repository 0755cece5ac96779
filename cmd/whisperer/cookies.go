package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"bird_whisperer/internal/cookies"
)

func cookiesCmd() *cobra.Command {
	var (
		profile  string
		headless bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Print the x.com session cookies of a Chrome profile as JSON",
		Long: `Print the x.com session cookies of a Chrome profile as JSON.

The profile must be logged in to x.com and Chrome must not be running on it.
Use the values as AUTH_TOKEN and CT0.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			session, err := cookies.Extract(ctx, profile, headless)
			if err != nil {
				return fmt.Errorf("extract cookies from %s: %w", profile, err)
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(session)
		},
	}

	cmd.Flags().StringVar(&profile, "profile", defaultProfileDir(), "Chrome profile directory")
	cmd.Flags().BoolVar(&headless, "headless", true, "run Chrome without a window")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "give up after this long")

	return cmd
}

func defaultProfileDir() string {
	if dir := os.Getenv("CHROME_PROFILE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "chromium", "Default")
	}
	return filepath.Join(home, ".config", "chromium", "Default")
}
