package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	x402 "github.com/castlens/x402client"
	x402http "github.com/castlens/x402client/http"
	"github.com/castlens/x402client/pkg/jobstore"
	"github.com/castlens/x402client/polling"
)

var (
	callByID bool
	callBody string
	callWait bool
)

var callCmd = &cobra.Command{
	Use:   "call <profile|social|mbti|chat-create|chat-message> [query]",
	Short: "Call an endpoint, paying if challenged",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 1 {
			query = args[1]
		}
		endpoint, err := resolveEndpoint(args[0], query, callByID)
		if err != nil {
			return err
		}

		var body []byte
		if callBody != "" {
			if !json.Valid([]byte(callBody)) {
				return fmt.Errorf("--body is not valid JSON")
			}
			body = []byte(callBody)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		client, err := newClient()
		if err != nil {
			return err
		}
		defer client.Close()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		observer := polling.NewChannelObserver(32)
		res, err := x402http.Dispatch[json.RawMessage](ctx, client, endpoint, body,
			x402http.WithSessionObserver(observer))

		if inflight, ok := x402http.InFlight(err); ok {
			rec := jobstore.Record{
				PendingJob:     x402.NewPendingJob(args[0], inflight, time.Now()),
				EndpointPath:   endpoint.Path(),
				EndpointMethod: endpoint.Method(),
			}
			if rec.JobKey == "" {
				rec.JobKey = endpoint.Method() + " " + endpoint.Path()
			}
			if err := store.Save(ctx, rec); err != nil {
				logger.Warn("failed to save pending job", zap.Error(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), inflight.Message)
			fmt.Fprintf(cmd.OutOrStdout(), "job: %s (%s)\n", rec.JobKey, inflight.Status)

			handle, _ := x402http.PendingHandle[json.RawMessage](err)
			if !callWait || handle == nil {
				return nil
			}
			return follow(ctx, cmd, handle, observer, store, rec.JobKey)
		}
		if err != nil {
			return err
		}

		if res.Stale {
			fmt.Fprintln(cmd.ErrOrStderr(), "showing cached result while a refresh runs")
		}
		if err := printJSON(cmd, res.Value); err != nil {
			return err
		}
		if res.Stale && callWait && res.Refresh != nil {
			return follow(ctx, cmd, res.Refresh, observer, nil, "")
		}
		return nil
	},
}

func init() {
	callCmd.Flags().BoolVar(&callByID, "fid", false, "treat the query as a numeric id instead of a username")
	callCmd.Flags().StringVar(&callBody, "body", "", "JSON request body")
	callCmd.Flags().BoolVarP(&callWait, "wait", "w", false, "keep polling until a pending job finishes")
}

func resolveEndpoint(kind, query string, byID bool) (x402.Endpoint, error) {
	needsQuery := func() error {
		if query == "" {
			return fmt.Errorf("%s requires a query", kind)
		}
		return nil
	}

	switch kind {
	case "profile":
		return x402.ProfileEndpoint(query, byID), needsQuery()
	case "social":
		return x402.SocialEndpoint(query, byID), needsQuery()
	case "mbti":
		return x402.MbtiEndpoint(query, byID), needsQuery()
	case "chat-create":
		return x402.ChatSessionEndpoint(), nil
	case "chat-message":
		return x402.ChatMessageEndpoint(), nil
	}
	return x402.Endpoint{}, fmt.Errorf("unknown endpoint %q", kind)
}

// follow prints session updates until the session stops, then the result.
// When store is set the record under recordKey tracks the updates and is
// dropped once the job reaches a terminal state.
func follow(ctx context.Context, cmd *cobra.Command, handle *polling.Handle[json.RawMessage], observer *polling.ChannelObserver, store *jobstore.Store, recordKey string) error {
	track := store != nil && recordKey != ""
	out := cmd.ErrOrStderr()
	for {
		select {
		case u := <-observer.Updates():
			fmt.Fprintf(out, "[%s] %s %s\n", u.At.Format(time.TimeOnly), u.Status, u.Message)
			if track && u.Status != polling.StatusExhausted {
				if err := store.UpdateStatus(ctx, recordKey, x402.JobStatus(u.Status), u.Message); err != nil && !errors.Is(err, jobstore.ErrNotFound) {
					logger.Warn("failed to update job", zap.String("job_key", recordKey), zap.Error(err))
				}
			}
		case <-handle.Done():
			value, err := handle.Wait(context.Background())
			if track && (err == nil || errors.Is(err, x402.ErrJobFailed)) {
				if derr := store.Delete(ctx, recordKey); derr != nil {
					logger.Warn("failed to delete job", zap.String("job_key", recordKey), zap.Error(derr))
				}
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, value)
		case <-ctx.Done():
			handle.Cancel()
			return ctx.Err()
		}
	}
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
