package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/facewatch/internal/store"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var sightingsOpts struct {
	label    string
	limit    int
	sessions bool
}

var sightingsCmd = &cobra.Command{
	Use:   "sightings",
	Short: "List recorded watch sessions and sightings",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if err := openStore(ctx); err != nil {
			utils.Die("Failed to open sighting log", err, nil)
		}

		if sightingsOpts.sessions {
			sessions, err := DB.ListSessions(ctx)
			if err != nil {
				utils.Die("Failed to list sessions", err, nil)
			}
			printSessions(os.Stdout, sessions)
			return
		}

		sightings, err := DB.ListSightings(ctx, sightingsOpts.label, sightingsOpts.limit)
		if err != nil {
			utils.Die("Failed to list sightings", err, nil)
		}
		printSightings(os.Stdout, sightings, false)
	},
}

func init() {
	sightingsCmd.Flags().StringVarP(&sightingsOpts.label, "label", "l", "", "Only show sightings with this label")
	sightingsCmd.Flags().IntVarP(&sightingsOpts.limit, "limit", "n", 50, "Maximum number of sightings to show (0 for all)")
	sightingsCmd.Flags().BoolVar(&sightingsOpts.sessions, "sessions", false, "List watch sessions instead of sightings")
	rootCmd.AddCommand(sightingsCmd)
}

func printSessions(out io.Writer, sessions []store.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No watch sessions recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSOURCE\tGALLERY\tFRAMES\tSIGHTINGS\tSTARTED\tFINISHED")
	fmt.Fprintln(w, "-------\t------\t-------\t------\t---------\t-------\t--------")
	for _, s := range sessions {
		finished := "running"
		if s.FinishedAt != nil {
			finished = s.FinishedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.ID.String()[:8], s.Source, s.GallerySize, s.Frames, s.Sightings,
			s.StartedAt.Local().Format("2006-01-02 15:04"), finished)
	}
	w.Flush()
}

// printSightings renders sightings as a table. withDistance adds the
// cosine distance column filled in by nearest-neighbour searches.
func printSightings(out io.Writer, sightings []store.Sighting, withDistance bool) {
	if len(sightings) == 0 {
		fmt.Fprintln(out, "No sightings found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	header := "ID\tSESSION\tSOURCE\tFRAME\tLABEL\tSIMILARITY\tSEEN"
	rule := "--\t-------\t------\t-----\t-----\t----------\t----"
	if withDistance {
		header += "\tDISTANCE"
		rule += "\t--------"
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, rule)
	for _, s := range sightings {
		label := s.Label
		if s.LowConfidence {
			label += "?"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%.3f\t%s",
			s.ID, s.SessionID.String()[:8], s.Source, s.FrameIndex, label, s.Similarity,
			s.SeenAt.Local().Format("2006-01-02 15:04:05"))
		if withDistance {
			fmt.Fprintf(w, "\t%.3f", s.Distance)
		}
		fmt.Fprintln(w)
	}
	w.Flush()
}
