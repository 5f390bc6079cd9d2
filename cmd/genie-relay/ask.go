package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/capitalize-ai/genie-relay/internal/genie"
	"github.com/capitalize-ai/genie-relay/internal/model"
)

// asker is the subset of the Genie client the ask command needs.
type asker interface {
	StartConversation(ctx context.Context, question string) (*model.RemoteExchange, error)
	ContinueConversation(ctx context.Context, conversationID, question string) (*model.RemoteExchange, error)
}

func newAskCommand() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask Genie one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if err := cfg.ValidateGenie(); err != nil {
				return err
			}

			client := newGenieClient(cmd.Context(), cfg, log)
			return ask(cmd.Context(), cmd.OutOrStdout(), client, newPoller(client, cfg, log), conversationID, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing Genie conversation")
	return cmd
}

// ask prints the assembled answer. The returned error is non-nil when the
// exchange failed or timed out so that the process exits non-zero.
func ask(ctx context.Context, out io.Writer, client asker, poller *genie.Poller, conversationID, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return &genie.ValidationError{Fields: []string{"question"}, Reason: "question is empty"}
	}

	var (
		ex  *model.RemoteExchange
		err error
	)
	if conversationID == "" {
		ex, err = client.StartConversation(ctx, question)
	} else {
		ex, err = client.ContinueConversation(ctx, conversationID, question)
	}
	if err != nil {
		fmt.Fprintln(out, genie.UserMessage(err))
		return err
	}

	answer, err := poller.AwaitCompletion(ctx, ex.ConversationID, ex.MessageID)
	if err != nil {
		fmt.Fprintln(out, genie.UserMessage(err))
		return errors.Wrap(err, "await answer")
	}

	fmt.Fprintln(out, answer.Text)
	fmt.Fprintf(out, "\nconversation: %s  message: %s  outcome: %s\n", ex.ConversationID, ex.MessageID, answer.Outcome)
	return answer.Err()
}
