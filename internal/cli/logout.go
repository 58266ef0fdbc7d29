package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ThomasJRyan/Nitrix/internal/config"
)

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget saved credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath()
			if err := config.ClearCredentials(path); err != nil {
				return err
			}
			if err := config.NewStateStore("").Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Saved credentials removed from %s\n", path)
			return nil
		},
	}
}
