package levelAuth

import (
	"context"
	"log/slog"
	"net/url"
)

// logMailer is the fallback Mailer. It records the send at info level without the token.
type logMailer struct {
	logger *slog.Logger
}

func (m logMailer) Send(ctx context.Context, msg MailMessage) error {
	m.logger.InfoContext(ctx, "mail delivery not configured; dropping message",
		"kind", string(msg.Kind),
		"to", msg.To,
	)
	return nil
}

// sendMail delivers msg and logs failures. Callers never fail on mail errors.
func (e *Engine) sendMail(ctx context.Context, msg MailMessage) {
	if e.mailer == nil {
		return
	}
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.metricInc(MetricMailFailure)
		e.logger.WarnContext(ctx, "mail delivery failed",
			"kind", string(msg.Kind),
			"to", msg.To,
			"error", err,
		)
		e.emitAudit(ctx, auditEventMailFailure, false, "", 0, err, func() map[string]string {
			return map[string]string{"kind": string(msg.Kind)}
		})
	}
}

// withToken appends token as the "token" query parameter of page. An empty or
// unparsable page yields "".
func withToken(page, token string) string {
	if page == "" {
		return ""
	}
	u, err := url.Parse(page)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
