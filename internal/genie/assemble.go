package genie

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/genie-relay/internal/model"
	"github.com/capitalize-ai/genie-relay/pkg/logger"
)

// QueryResultFetcher loads the tabular result behind an attachment.
type QueryResultFetcher interface {
	GetQueryResult(ctx context.Context, conversationID, messageID, attachmentID string) (*model.QueryResult, error)
}

// Assembler turns a completed exchange into reply text.
type Assembler struct {
	fetcher QueryResultFetcher
	debug   bool
	logger  *logger.Logger
}

// NewAssembler creates an Assembler. With a nil fetcher it extracts text from
// the message payload alone (see ExtractFallback). debug enables the raw JSON
// dump when nothing can be extracted.
func NewAssembler(fetcher QueryResultFetcher, debug bool, log *logger.Logger) *Assembler {
	if log == nil {
		log = logger.Nop()
	}
	return &Assembler{fetcher: fetcher, debug: debug, logger: log.Named("assembler")}
}

// Assemble builds the reply for a completed exchange: each attachment's
// explanation followed by its rendered query result, separated by blank lines.
// When that yields nothing the well-known message fields are tried, then the
// payload dump in debug mode or the apology text otherwise.
func (a *Assembler) Assemble(ctx context.Context, ex *model.RemoteExchange, payload map[string]any) string {
	if a.fetcher == nil {
		return ExtractFallback(payload, a.debug)
	}

	var parts []string
	for _, att := range ex.Attachments {
		if usableExplanation(att.Text, ex.Question) {
			parts = append(parts, att.Text)
		}
		if !att.HasQuery || att.ID == "" {
			continue
		}

		result, err := a.fetcher.GetQueryResult(ctx, ex.ConversationID, ex.MessageID, att.ID)
		if err != nil {
			a.logger.Error("fetching query result",
				zap.String("conversation_id", ex.ConversationID),
				zap.String("attachment_id", att.ID),
				zap.Error(err),
			)
			continue
		}
		if table := RenderTable(result); table != "" {
			parts = append(parts, table)
		}
	}

	if len(parts) == 0 {
		// Attachment text was already filtered above; only message fields remain.
		a.logger.Warn("no content extracted from attachments, trying message fields", zap.String("message_id", ex.MessageID))
		return topLevelOrNoContent(payload, ex.Question, a.debug)
	}
	return strings.Join(parts, "\n\n")
}
