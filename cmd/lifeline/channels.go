package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// reasoner is implemented by channel clients that explain why they are
// disabled.
type reasoner interface {
	Reason() string
}

func newChannelsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Report alert channel and relay status",
		Long:  "Validates SMS and push credentials the way the server does at startup and lists the configured relay sinks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(_ context.Context, a *app) error {
				out := cmd.OutOrStdout()
				p := newPainter(out)

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CHANNEL\tSTATUS\tREASON")
				for _, c := range a.channels() {
					reason := "-"
					if r, ok := c.(reasoner); ok && !c.Usable() {
						reason = r.Reason()
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name(), p.usable(c.Usable()), reason)
				}
				if err := w.Flush(); err != nil {
					return err
				}

				sinks := a.relay.Sinks()
				if len(sinks) == 0 {
					fmt.Fprintln(out, "Relay: no sinks configured")
					return nil
				}
				fmt.Fprintf(out, "Relay: %v\n", sinks)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
