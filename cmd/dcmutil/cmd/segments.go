package cmd

import (
	"fmt"

	"github.com/jpfielding/godcm/pkg/dicom"
	"github.com/spf13/cobra"
)

// newSegmentsCmd exercises Object.Segments, splitting the dataset body
// into byte-bounded chunks and reporting each chunk's size — a
// diagnostic for callers planning to hand a large dataset to something
// with a message-size limit.
func newSegmentsCmd() *cobra.Command {
	var maxBytes int
	cmd := &cobra.Command{
		Use:   "segments <path>",
		Short: "split a dataset body into byte-bounded segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := dicom.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			segments, err := obj.Segments(maxBytes)
			if err != nil {
				return fmt.Errorf("segmenting %s: %w", args[0], err)
			}
			for i, seg := range segments {
				fmt.Printf("segment %d: %d bytes\n", i, len(seg))
			}
			fmt.Printf("total: %d segment(s)\n", len(segments))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 65536, "maximum bytes per segment")
	return cmd
}
