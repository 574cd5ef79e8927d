// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/aegis/internal/orchestrator"
	"github.com/sigil-dev/aegis/internal/server"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

// tokenEnv names the environment variable holding the bearer token.
const tokenEnv = "AEGIS_TOKEN"

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Send a message to a running gateway",
		Long: `Submit a message to the gateway and print the assistant's answer. Turns
answered asynchronously are polled until they resolve or --timeout passes.
Pass --conversation to continue an earlier conversation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().String("address", defaultAddress, "gateway address")
	cmd.Flags().String("token", "", "bearer token (default $"+tokenEnv+")")
	cmd.Flags().StringP("conversation", "C", "", "continue an existing conversation")
	cmd.Flags().StringP("model", "m", "", "model id")
	cmd.Flags().StringP("agent", "a", "", "agent id")
	cmd.Flags().String("safety-mode", "", "redact (default), protect or none")
	cmd.Flags().Duration("poll-interval", 2*time.Second, "delay between polls of a pending turn")
	cmd.Flags().Duration("timeout", 5*time.Minute, "give up waiting for a pending turn after this long")
	cmd.Flags().Bool("show-safety", false, "print the safety metadata of the turn")

	return cmd
}

// chatRequest is the body of POST /api/v1/chat.
type chatRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	ModelID        string `json:"model_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	SafetyMode     string `json:"safety_mode,omitempty"`
}

func runChat(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	addr, _ := flags.GetString("address")
	token, _ := flags.GetString("token")
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	interval, _ := flags.GetDuration("poll-interval")
	timeout, _ := flags.GetDuration("timeout")
	showSafety, _ := flags.GetBool("show-safety")

	req := chatRequest{Message: strings.Join(args, " ")}
	req.ConversationID, _ = flags.GetString("conversation")
	req.ModelID, _ = flags.GetString("model")
	req.AgentID, _ = flags.GetString("agent")
	req.SafetyMode, _ = flags.GetString("safety-mode")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := newGatewayClient(addr, token)
	out := cmd.OutOrStdout()

	var resp server.ChatBody
	if err := client.postJSON(ctx, "/api/v1/chat", req, &resp); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "conversation: %s\n", resp.ConversationID)
	for _, m := range resp.Messages {
		if m.Role == "assistant" && !m.Pending {
			printAnswer(out, m.Content)
		}
	}
	if resp.Status != string(orchestrator.StatusPending) {
		printTurnDetails(out, resp.Status, len(resp.ToolResults), resp.SafetyMetadata, showSafety)
		return nil
	}

	_, _ = fmt.Fprintln(out, "waiting for the backend to finish...")
	poll, err := pollUntilResolved(ctx, client, resp.ConversationID, interval)
	if err != nil {
		return err
	}
	if poll.Response != nil {
		printAnswer(out, poll.Response.Content)
	}
	printTurnDetails(out, poll.Status, len(poll.ToolResults), poll.SafetyMetadata, showSafety)
	return nil
}

// pollUntilResolved polls a pending turn until its status changes or ctx ends.
func pollUntilResolved(ctx context.Context, client *gatewayClient, conversationID string, interval time.Duration) (*server.PollBody, error) {
	if interval <= 0 {
		interval = time.Second
	}
	path := "/api/v1/chat/" + url.PathEscape(conversationID) + "/poll"

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, sigilerr.Errorf(sigilerr.CodeCLIRequestFailure,
				"turn in conversation %s still pending: %w", conversationID, ctx.Err())
		case <-ticker.C:
		}

		var poll server.PollBody
		if err := client.getJSON(ctx, path, &poll); err != nil {
			return nil, err
		}
		if poll.Status != string(orchestrator.StatusPending) {
			return &poll, nil
		}
	}
}

func printAnswer(w io.Writer, content string) {
	_, _ = fmt.Fprintf(w, "\n%s\n\n", strings.TrimSpace(content))
}

func printTurnDetails(w io.Writer, status string, toolCount int, safety map[string]any, showSafety bool) {
	_, _ = fmt.Fprintf(w, "status: %s", status)
	if toolCount > 0 {
		_, _ = fmt.Fprintf(w, " (%d tool call(s))", toolCount)
	}
	_, _ = fmt.Fprintln(w)
	if !showSafety {
		return
	}
	for _, key := range []string{"input_processing", "output_processing"} {
		if md, ok := safety[key]; ok {
			_, _ = fmt.Fprintf(w, "%s: %v\n", key, md)
		}
	}
}
