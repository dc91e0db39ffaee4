package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

func (c *CLI) newUpCommand() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Self-update to the latest version",
		Example: `  structperc up
  structperc up --check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.selfUpdate(cmd.Context(), check)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether a newer release exists")
	return cmd
}

// releaseVersion maps a build version to a comparable semantic version.
// Development builds compare lower than any release.
func releaseVersion(version string) string {
	v := strings.TrimPrefix(version, "v")
	if v == "" || v == "dev" {
		return "0.0.0"
	}
	return v
}

func (c *CLI) selfUpdate(ctx context.Context, check bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	v := releaseVersion(c.version)

	updater, err := selfupdate.NewUpdater(selfupdate.Config{})
	if err != nil {
		return err
	}

	latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug("happyhackingspace/structperc"))
	if err != nil {
		return fmt.Errorf("detect latest version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release found")
	}

	if latest.LessOrEqual(v) {
		fmt.Printf("Already up to date (%s)\n", c.version)
		return nil
	}

	if check {
		fmt.Printf("Update available: %s -> %s\n", c.version, latest.Version())
		return nil
	}

	slog.Info("Updating", "from", c.version, "to", latest.Version())

	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if err := updater.UpdateTo(ctx, latest, exe); err != nil {
		return fmt.Errorf("update: %w", err)
	}

	fmt.Printf("Updated to %s\n", latest.Version())
	return nil
}
