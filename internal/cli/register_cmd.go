package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"imgreg/internal/imageio"
	"imgreg/internal/registration"
	"imgreg/internal/transform"

	"github.com/spf13/cobra"
)

// requestFlags are the registration options settable on the command line.
// Only flags the user actually passed override the config.
type requestFlags struct {
	strategy   string
	model      string
	detector   string
	robust     string
	preprocess string
	gamma      float64
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "", "Strategy: ecc, features, orb, akaze, fourier-mellin")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Motion model: translation, euclidean, rigid, affine, homography")
	cmd.Flags().StringVar(&f.detector, "detector", "", "Feature detector: orb, akaze")
	cmd.Flags().StringVar(&f.robust, "robust", "", "Robust estimator: ransac, lmeds")
	cmd.Flags().StringVar(&f.preprocess, "preprocess", "", "Preprocessing: none, smooth, edges")
	cmd.Flags().Float64Var(&f.gamma, "gamma", 0, "Deriche filter strength in [0, 1)")
}

// apply overlays the flags the user set on req.
func (f *requestFlags) apply(cmd *cobra.Command, req registration.Request) (registration.Request, error) {
	var err error
	changed := cmd.Flags().Changed
	if changed("strategy") {
		if req.Strategy, err = registration.ParseStrategyKind(f.strategy); err != nil {
			return req, err
		}
	}
	if changed("model") {
		if req.Model, err = registration.ParseMotionModel(f.model); err != nil {
			return req, err
		}
	}
	if changed("detector") {
		if req.Features.Detector, err = registration.ParseDetectorKind(f.detector); err != nil {
			return req, err
		}
	}
	if changed("robust") {
		if req.Features.Robust, err = registration.ParseRobustMethod(f.robust); err != nil {
			return req, err
		}
	}
	if changed("preprocess") {
		if req.Preprocess, err = registration.ParsePreprocess(f.preprocess); err != nil {
			return req, err
		}
	}
	if changed("gamma") {
		req.Gamma = f.gamma
	}
	return req, req.Validate()
}

func (r *Root) request(cmd *cobra.Command, flags *requestFlags) (registration.Request, error) {
	req, err := r.Config.Request()
	if err != nil {
		return req, err
	}
	req.Logger = r.Log
	return flags.apply(cmd, req)
}

// registerOutput is what the register command prints.
type registerOutput struct {
	Strategy  string              `json:"strategy"`
	Model     string              `json:"model"`
	Transform transform.Transform `json:"transform"`
	Score     float64             `json:"score"`
	Angle     float64             `json:"angle,omitempty"`
	Scale     float64             `json:"scale,omitempty"`
	Matches   int                 `json:"matches,omitempty"`
	Elapsed   string              `json:"elapsed"`
}

func newRegisterCmd(root *Root) *cobra.Command {
	var (
		flags   requestFlags
		output  string
		matches string
	)

	cmd := &cobra.Command{
		Use:   "register <reference> <sensed>",
		Short: "Register the sensed image onto the reference image",
		Long: `Estimate the transform mapping the sensed image onto the reference,
print it as JSON and optionally write the registered image.

Examples:
  imreg register ref.png moved.png --strategy ecc --model affine -o out.png
  imreg register ref.tif moved.tif -s orb -m homography --matches matches.png
  imreg register ref.png moved.png -s fourier-mellin -m rigid`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := root.request(cmd, &flags)
			if err != nil {
				return err
			}
			req.Features.Visualize = matches != ""

			ref, err := imageio.Load(args[0], imageio.Unchanged)
			if err != nil {
				return err
			}
			defer ref.Close()
			sensed, err := imageio.Load(args[1], imageio.Unchanged)
			if err != nil {
				return err
			}
			defer sensed.Close()

			root.Log.Info("registering",
				"reference", args[0],
				"sensed", args[1],
				"strategy", req.Strategy.String(),
				"model", req.Model.String())

			res, err := registration.RegisterImages(ref, sensed, req)
			if err != nil {
				return err
			}
			defer res.Close()

			if output != "" {
				if err := imageio.Save(output, res.Registered); err != nil {
					return err
				}
				root.Log.Info("wrote registered image", "path", output)
			}
			if matches != "" {
				if res.Matches == nil || res.Matches.Visualization.Empty() {
					root.Log.Warn("no match visualization for strategy", "strategy", req.Strategy.String())
				} else if err := imageio.Save(matches, res.Matches.Visualization); err != nil {
					return err
				}
			}

			out := registerOutput{
				Strategy:  res.Strategy.String(),
				Model:     res.Model.String(),
				Transform: res.Transform,
				Score:     res.Score,
				Angle:     res.Angle,
				Scale:     res.Scale,
				Matches:   res.Matches.Len(),
				Elapsed:   res.Elapsed.String(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the registered image to this path")
	cmd.Flags().StringVar(&matches, "matches", "", "Write the feature match visualization to this path")
	return cmd
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
