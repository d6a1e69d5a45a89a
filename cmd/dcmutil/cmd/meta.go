package cmd

import (
	"fmt"
	"strings"

	"github.com/jpfielding/godcm/pkg/dicom"
	"github.com/jpfielding/godcm/pkg/dicom/dictionary"
	"github.com/jpfielding/godcm/pkg/dicom/tag"
	"github.com/spf13/cobra"
)

// newMetaCmd prints only the group 0002 file-meta elements, a
// generalization of the teacher's analyze.go structured walk down to
// the header a reader usually wants first.
func newMetaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta <path>",
		Short: "print a DICOM file's meta information group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := dicom.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			var b strings.Builder
			for _, e := range obj.Store.All() {
				if !e.Tag.IsGroup0002() {
					continue
				}
				entry, _ := dictionary.LookupTag(e.Tag)
				fmt.Fprintf(&b, "%s %s %-32s %v\n", e.Tag, e.VR.String(), entry.Name, e.Value)
			}
			if b.Len() == 0 {
				fmt.Fprintf(&b, "no %s elements found\n", tag.FileMetaInformationGroupLength)
			}
			fmt.Print(b.String())
			return nil
		},
	}
	return cmd
}
