package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/onceguard/pkg/client"
)

// command wraps a remote coordinator client for each cobra RunE.
type command struct {
	c *client.Client
}

func newCommand(cf *clientFlags) *command {
	cfg := client.Config{
		BaseURL:    cf.ServerURL,
		Credential: cf.Credential,
		Insecure:   cf.Insecure,
	}
	return &command{c: client.New(cfg)}
}

func (cmd *command) tryStart(id string) error {
	resp, err := cmd.c.TryStart(context.Background(), id)
	if err != nil {
		return fmt.Errorf("try-start: %w", err)
	}
	fmt.Println(resp.Sample)
	return nil
}

func (cmd *command) complete(id string) error {
	if err := cmd.c.Complete(context.Background(), id); err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	fmt.Println("ok")
	return nil
}

func (cmd *command) status(id string) error {
	resp, err := cmd.c.Status(context.Background(), id)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	fmt.Println(resp.Status)
	return nil
}

func createTryStartCommand(cf *clientFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "try-start",
		Short: "Claim an id for processing, or report it already seen",
		Long: `try-start asks the coordinator whether id has already been claimed
or completed. It prints "not_seen" (caller should perform the side
effect and then call complete) or "seen" (the id was already
completed). While a peer still holds an unfinished claim the server
waits for it, and fails with an error if the poll budget runs out.`,
		RunE: func(*cobra.Command, []string) error {
			return newCommand(cf).tryStart(id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "idempotency id to claim (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func createCompleteCommand(cf *clientFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark an id's side effect as finished",
		RunE: func(*cobra.Command, []string) error {
			return newCommand(cf).complete(id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "idempotency id to complete (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func createStatusCommand(cf *clientFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report an id's current record state",
		Long:  `status prints one of not_started, started, timeout, or completed.`,
		RunE: func(*cobra.Command, []string) error {
			return newCommand(cf).status(id)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "idempotency id to query (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
