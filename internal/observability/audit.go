package observability

import (
	"context"
	"log/slog"

	"github.com/backoffice-kit/auth-service/internal/service"
)

// SlogAuditNotifier records authentication events as structured log lines.
// Audit persistence belongs to an external collaborator; this default keeps
// the event stream observable without it.
type SlogAuditNotifier struct {
	logger *slog.Logger
}

func NewSlogAuditNotifier(logger *slog.Logger) *SlogAuditNotifier {
	return &SlogAuditNotifier{logger: logger}
}

func (n *SlogAuditNotifier) Record(ctx context.Context, event, identity string, src service.SourceContext) {
	n.logger.InfoContext(ctx, "audit",
		"event", event,
		"identity", identity,
		"ip", src.IP,
		"user_agent", src.UserAgent,
	)
}
