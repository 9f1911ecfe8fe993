package app

import (
	"context"
	"encoding/json"

	"github.com/rocketarb/rocketarb/internal/domain"
)

const defaultHistoryLimit = 20

// HistoryMode prints the most recent audit log entries.
func (a *App) HistoryMode(ctx context.Context) error {
	audit, closeAudit, err := openAudit(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeAudit()
	return a.printHistory(ctx, audit)
}

func (a *App) printHistory(ctx context.Context, audit domain.AuditStore) error {
	limit := a.cfg.Run.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	entries, err := audit.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.say("no audit entries")
		return nil
	}
	for _, e := range entries {
		detail, err := json.Marshal(e.Detail)
		if err != nil {
			detail = []byte("{}")
		}
		a.say("%s  %-18s %s", e.CreatedAt.UTC().Format("2006-01-02 15:04:05"), e.Event, detail)
	}
	return nil
}
