package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <gallery_dir>",
	Short: "Build the gallery from a directory of labeled face photos and report the result",
	Long: "Every image in the directory enrolls one identity labeled with the file name " +
		"(without extension). Images without a detectable face are skipped.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runEnroll(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(cmd *cobra.Command, dir string) {
	r, err := newRecognizer()
	if err != nil {
		utils.Die("Failed to start recognizer", err, nil)
	}
	defer r.engine.Close()

	g, report, err := r.enroll(cmd.Context(), dir)
	if err != nil {
		utils.Die("Enrollment failed", err, nil)
	}

	printEnrollReport(os.Stdout, g, report)
}

func printEnrollReport(out io.Writer, g *gallery.Gallery, report gallery.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tLABEL\tSOURCE")
	fmt.Fprintln(w, "-\t-----\t------")
	for i, e := range g.Entries() {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, e.Label, filepath.Base(e.Source))
	}
	w.Flush()

	if len(report.Failures) > 0 {
		fmt.Fprintln(out, "\nSkipped:")
		for _, f := range report.Failures {
			fmt.Fprintf(out, "  ❌ %s (%s): %v\n", filepath.Base(f.Source.Path), f.Source.Label, f.Err)
		}
	}

	fmt.Fprintf(out, "\n📊 Attempted %d, enrolled %d, failed %d", report.Attempted, report.Succeeded, report.Failed)
	if report.Skipped > 0 {
		fmt.Fprintf(out, ", not attempted %d", report.Skipped)
	}
	fmt.Fprintln(out)
}
