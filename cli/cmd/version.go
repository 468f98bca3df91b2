package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/scriptrun/cli/render"
	"github.com/pithecene-io/scriptrun/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version" yaml:"version"`
	Commit          string `json:"commit" yaml:"commit"`
	ProtocolVersion string `json:"protocol_version" yaml:"protocol_version"`
	GoVersion       string `json:"go_version" yaml:"go_version"`
}

// VersionCommand returns the version command. It must not start a worker
// or any driver.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", exitInvalidInput)
		}

		return r.Render(VersionResponse{
			Version:         types.Version,
			Commit:          commit,
			ProtocolVersion: types.ProtocolVersion,
			GoVersion:       runtime.Version(),
		})
	}
}
