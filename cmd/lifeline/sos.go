package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/lifeline/internal/alert"
	"github.com/zulandar/lifeline/internal/db"
	"github.com/zulandar/lifeline/internal/sos"
)

func newSOSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sos",
		Short: "Trigger, inspect, and resolve SOS events",
	}

	cmd.AddCommand(newSOSTriggerCmd())
	cmd.AddCommand(newSOSHistoryCmd())
	cmd.AddCommand(newSOSResolveCmd())
	cmd.AddCommand(newSOSSweepCmd())
	return cmd
}

// withApp loads config, connects, migrates, and runs fn against a wired app.
func withApp(configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := connect(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx := context.Background()
	a := newApp(ctx, cfg, gormDB)
	defer a.Close()
	return fn(ctx, a)
}

func newSOSTriggerCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		lat, lng   float64
		phone      string
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Send an SOS for a user",
		Long:  "Records an SOS at the given coordinates and alerts the user's emergency contacts, exactly as the API does.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				res, err := a.manager.Trigger(ctx, sos.TriggerRequest{
					UserID:    userID,
					Latitude:  lat,
					Longitude: lng,
					UserPhone: phone,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				p := newPainter(out)
				ev := res.Event
				fmt.Fprintf(out, "SOS %s: %s\n", ev.ID, p.status(ev.Status))
				fmt.Fprintf(out, "Contacts: %d total, %d sent, %d failed, %d skipped\n",
					ev.TotalContacts, ev.Successful, ev.Failed, ev.Skipped)
				fmt.Fprintf(out, "Map: %s\n", res.MapsLink)
				if ev.FailureDetail != "" {
					fmt.Fprintf(out, "Failure: %s\n", ev.FailureDetail)
				}

				if len(ev.DispatchResults) > 0 {
					w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "CONTACT\tCHANNEL\tSTATUS\tDETAIL")
					for _, o := range ev.DispatchResults {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", o.ContactName, o.Channel, p.outcome(o.Status), alert.Truncate(outcomeDetail(o), 60))
					}
					w.Flush()
				}
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude in decimal degrees")
	cmd.Flags().StringVar(&phone, "phone", "", "callback number to include in the alert")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lng")
	return cmd
}

func newSOSHistoryCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's recent SOS events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				events, err := a.manager.History(ctx, userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(events) == 0 {
					fmt.Fprintln(out, "No SOS events.")
					return nil
				}

				p := newPainter(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tCREATED\tSTATUS\tSENT\tFAILED\tSKIPPED\tLOCATION")
				for _, ev := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						ev.ID, ev.CreatedAt.UTC().Format(time.RFC3339), p.status(ev.Status),
						ev.Successful, ev.Failed, ev.Skipped,
						alert.FormatCoordinates(ev.Latitude, ev.Longitude))
				}
				return w.Flush()
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newSOSResolveCmd() *cobra.Command {
	var (
		configPath string
		userID     string
	)

	cmd := &cobra.Command{
		Use:   "resolve <event-id>",
		Short: "Mark a user's SOS event resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				ev, err := a.manager.Resolve(ctx, args[0], userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "SOS %s: %s\n", ev.ID, ev.Status)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user ID that owns the event (required)")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newSOSSweepCmd() *cobra.Command {
	var (
		configPath string
		staleAfter time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Fail events whose dispatch never completed",
		Long:  "Runs the stale-event sweep once. Events still active after --stale-after are marked failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				after := staleAfter
				if after <= 0 {
					after = a.cfg.Sweep.StaleAfter
				}
				n, err := a.manager.SweepStale(ctx, after)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d stale events failed\n", n)
				return nil
			})
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "age after which an active event is stale (default from config)")
	return cmd
}
