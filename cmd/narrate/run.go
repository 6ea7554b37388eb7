package main

import (
	"errors"

	"github.com/aretw0/narrate/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [tour]",
	Short: "Play a tour in the browser",
	Long: `Opens the configured page in Chrome and plays a tour. Type commands while it
plays: n(ext), p(revious), pause, resume, r(estart), c(onversation), q(uit), or
?question to ask the guide.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{ConfigPath: configPath(cmd)}
		opts.TourID, _ = cmd.Flags().GetString("tour")
		if opts.TourID == "" && len(args) > 0 {
			opts.TourID = args[0]
		}
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
		opts.Watch, _ = cmd.Flags().GetBool("watch")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.Debug, _ = cmd.Flags().GetBool("debug")

		if opts.Watch && opts.Headless {
			return errors.New("--watch and --headless cannot be used together")
		}
		return cli.Execute(opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("tour", "t", "", "Tour to play (defaults to startTour)")
	runCmd.Flags().Bool("dry-run", false, "Play against an in-memory page without a browser")
	runCmd.Flags().BoolP("watch", "w", false, "Restart the tour when its definition changes")
	runCmd.Flags().Bool("headless", false, "Plain output without banner or markdown rendering")
}
