package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	x402 "github.com/castlens/x402client"
	x402http "github.com/castlens/x402client/http"
	"github.com/castlens/x402client/pkg/jobstore"
	"github.com/castlens/x402client/polling"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and resume pending jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no pending jobs")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB KEY\tTYPE\tSTATUS\tSTARTED\tENDPOINT")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s\n",
				r.JobKey, r.JobType, r.Status, r.StartedAt.Local().Format(time.DateTime), r.EndpointMethod, r.EndpointPath)
		}
		return w.Flush()
	},
	Annotations: offline,
}

var jobsResumeCmd = &cobra.Command{
	Use:   "resume <job_key>",
	Short: "Poll a saved job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Get(cmd.Context(), args[0])
		if errors.Is(err, jobstore.ErrNotFound) {
			return fmt.Errorf("no pending job %q", args[0])
		}
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		endpoint := x402.NewEndpoint(rec.EndpointMethod, rec.EndpointPath, rec.JobType, x402.TierBasic, true)
		observer := polling.NewChannelObserver(32)
		handle := x402http.Resume[json.RawMessage](client, endpoint, nil, rec.JobKey,
			x402http.WithSessionObserver(observer))

		fmt.Fprintf(cmd.ErrOrStderr(), "resuming %s (%s)\n", rec.JobKey, handle.ID())
		return follow(ctx, cmd, handle, observer, store, rec.JobKey)
	},
}

var jobsForgetCmd = &cobra.Command{
	Use:   "forget <job_key>",
	Short: "Remove a saved job without polling it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return store.Delete(cmd.Context(), args[0])
	},
	Annotations: offline,
}

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsResumeCmd, jobsForgetCmd)
}
