package cli

import (
	"errors"
	"fmt"
	"image"

	"imgreg/internal/imageio"
	"imgreg/internal/registration"
	"imgreg/internal/transform"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

// comparison is one strategy/model pair run by the compare command.
type comparison struct {
	strategy registration.StrategyKind
	model    registration.MotionModel
}

var comparisons = []comparison{
	{registration.StrategyECC, registration.Translation},
	{registration.StrategyECC, registration.Affine},
	{registration.StrategyORB, registration.Affine},
	{registration.StrategyORB, registration.Homography},
	{registration.StrategyAKAZE, registration.Affine},
	{registration.StrategyFourierMellin, registration.Rigid},
}

func newCompareCmd(root *Root) *cobra.Command {
	var (
		dx, dy float64
		angle  float64
		scale  float64
		margin int
	)

	cmd := &cobra.Command{
		Use:   "compare <image>",
		Short: "Distort an image by a known amount and register it back with every strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := imageio.Load(args[0], imageio.Gray)
			if err != nil {
				return err
			}
			defer ref.Close()

			sensed := distorted(ref, dx, dy, angle, scale)
			defer sensed.Close()

			base, err := root.Config.Request()
			if err != nil {
				return err
			}
			base.Logger = root.Log

			printf(cmd, "ground truth: shift (%s, %s), rotation %s deg, scale %s\n\n",
				formatFloat(dx), formatFloat(dy), formatFloat(angle), formatFloat(scale))
			printf(cmd, "%-16s %-12s %10s %10s %10s %12s\n", "strategy", "model", "tx", "ty", "residual", "elapsed")

			for _, c := range comparisons {
				req := base
				req.Strategy = c.strategy
				req.Model = c.model
				line, err := compareOne(ref, sensed, req, margin)
				if err != nil {
					printf(cmd, "%-16s %-12s failed: %v\n", c.strategy, c.model, err)
					continue
				}
				printf(cmd, "%s\n", line)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&dx, "dx", 10, "Horizontal shift in pixels")
	cmd.Flags().Float64Var(&dy, "dy", 20, "Vertical shift in pixels")
	cmd.Flags().Float64Var(&angle, "angle", 0, "Rotation in degrees about the image center")
	cmd.Flags().Float64Var(&scale, "scale", 1, "Scale about the image center")
	cmd.Flags().IntVar(&margin, "margin", 40, "Border excluded from the residual")
	return cmd
}

func distorted(img gocv.Mat, dx, dy, angle, scale float64) gocv.Mat {
	if angle == 0 && scale == 1 {
		return imageio.Shift(img, dx, dy)
	}
	rs := imageio.RotateScale(img, angle, scale)
	defer rs.Close()
	return imageio.Shift(rs, dx, dy)
}

func compareOne(ref, sensed gocv.Mat, req registration.Request, margin int) (string, error) {
	res, err := registration.RegisterImages(ref, sensed, req)
	if err != nil {
		return "", err
	}
	defer res.Close()

	affine := res.Transform
	if affine.Kind() == transform.KindHomography {
		if affine, err = transform.ExtractAffine(affine); err != nil {
			return "", err
		}
	}
	tx, ty, err := transform.ExtractTranslation(affine)
	if err != nil {
		return "", err
	}
	residual, err := meanAbsDiff(ref, res.Registered, margin)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%-16s %-12s %10s %10s %10s %12s",
		req.Strategy, req.Model, formatFloat(tx), formatFloat(ty), formatFloat(residual), res.Elapsed), nil
}

// meanAbsDiff is the mean absolute gray difference inside the central
// region left after removing margin pixels on every side.
func meanAbsDiff(a, b gocv.Mat, margin int) (float64, error) {
	if a.Rows() != b.Rows() || a.Cols() != b.Cols() {
		return 0, errors.New("residual: size mismatch")
	}
	if 2*margin >= a.Rows() || 2*margin >= a.Cols() {
		margin = 0
	}
	r := image.Rect(margin, margin, a.Cols()-margin, a.Rows()-margin)
	ra := a.Region(r)
	defer ra.Close()
	rb := b.Region(r)
	defer rb.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(ra, rb, &diff)
	return diff.Mean().Val1, nil
}
