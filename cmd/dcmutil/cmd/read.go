package cmd

import (
	"fmt"

	"github.com/jpfielding/godcm/pkg/dicom"
	"github.com/spf13/cobra"
)

// newReadCmd parses a file and prints every element, one per line,
// indented by hierarchy level — dcmutil's equivalent of the teacher's
// "decode" command, generalized from a single JSON/text dataset dump
// to the store's Print().
func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "parse a DICOM file and print its elements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := dicom.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			fmt.Print(obj.Print())
			for _, w := range obj.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
			return nil
		},
	}
	return cmd
}
