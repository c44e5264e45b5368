package cmd

import (
	"fmt"
	"strconv"

	"github.com/andresmejia3/facewatch/internal/utils"
	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label <sighting_id> <name>",
	Short: "Correct the label of a recorded sighting",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			utils.Die("Invalid sighting ID", err, nil)
		}
		name := args[1]

		if err := openStore(cmd.Context()); err != nil {
			utils.Die("Failed to open sighting log", err, nil)
		}
		if err := DB.LabelSighting(cmd.Context(), id, name); err != nil {
			utils.Die("Failed to label sighting", err, nil)
		}

		fmt.Printf("✅ Sighting %d labeled as '%s'\n", id, name)
	},
}

func init() {
	rootCmd.AddCommand(labelCmd)
}
