package cli

import (
	"imgreg/internal/rest"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(root *Root) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP registration API",
		Long: `Start an HTTP server exposing registration over multipart uploads.

Endpoints:
  GET  /api/v1/ping
  GET  /api/v1/version
  POST /api/v1/register   reference, sensed files; JSON transform
  POST /api/v1/warp       reference, sensed files; registered PNG

Examples:
  imreg serve --addr :8080
  curl -F reference=@ref.png -F sensed=@moved.png -F strategy=orb localhost:8080/api/v1/register`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("addr") {
				addr = root.Config.Server.Addr
			}
			if root.Config.Server.Release {
				gin.SetMode(gin.ReleaseMode)
			}

			defaults, err := root.Config.Request()
			if err != nil {
				return err
			}
			srv := rest.NewServer(defaults, root.Config.Server.MaxUploadBytes, root.Log)
			return srv.Serve(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
