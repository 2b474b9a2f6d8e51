package cli

import (
	"imgreg/internal/filter"
	"imgreg/internal/imageio"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

func newEdgesCmd(root *Root) *cobra.Command {
	var (
		gamma float64
		row   int
	)

	cmd := &cobra.Command{
		Use:   "edges <input> <output>",
		Short: "Write the Deriche gradient map of an image",
		Long: `Compute the Deriche edge map of an image and write it as 8-bit.
A single row of the edge map is also analysed: the strongest local
changes along it are reported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := imageio.Load(args[0], imageio.Gray)
			if err != nil {
				return err
			}
			defer img.Close()

			edges, err := filter.Gradient(img, gamma)
			if err != nil {
				return err
			}
			defer edges.Close()

			if err := imageio.Save(args[1], edges); err != nil {
				return err
			}
			root.Log.Info("wrote edge map", "path", args[1], "gamma", gamma)

			if row < 0 || row >= edges.Rows() {
				row = edges.Rows() / 2
			}
			peaks := filter.FindPeaks1D(filter.LocalDispersion1D(rowProfile(edges, row)))
			printf(cmd, "row %d: %d edge peaks\n", row, countNonZero(peaks))
			for x, v := range peaks {
				if v > 0 {
					printf(cmd, "  x=%d strength=%s\n", x, formatFloat(v))
				}
			}
			return nil
		},
	}

	cmd.Flags().Float64VarP(&gamma, "gamma", "g", 0.5, "Deriche filter strength in [0, 1)")
	cmd.Flags().IntVar(&row, "row", -1, "Row to analyse (default: middle row)")
	return cmd
}

// rowProfile reads one row of a CV_8UC1 Mat as float64.
func rowProfile(m gocv.Mat, row int) []float64 {
	out := make([]float64, m.Cols())
	for x := range out {
		out[x] = float64(m.GetUCharAt(row, x))
	}
	return out
}

func countNonZero(sig []float64) int {
	n := 0
	for _, v := range sig {
		if v != 0 {
			n++
		}
	}
	return n
}
