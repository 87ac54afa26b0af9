package supervisor

import (
	"context"
	"log/slog"
)

// SyncFromDB reconciles persistent state with live state (spec §4.3.4):
// auto-starts eligible stopped records, bridges running records this
// process hasn't connected to yet, and disconnects proxies for records
// no longer marked running. It is idempotent and safe to retry.
func (s *Supervisor) SyncFromDB(ctx context.Context) error {
	if _, err := s.DetectCrashes(ctx); err != nil {
		return err
	}

	records, err := s.store.ListExternalServers(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	bridged := make(map[string]bool, len(s.running))
	for ns := range s.running {
		bridged[ns] = true
	}
	s.mu.Unlock()

	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec.Namespace] = true

		switch {
		case rec.Status == string(StateRunning) && !bridged[rec.Namespace]:
			if err := s.Start(ctx, rec.Namespace); err != nil {
				slog.Warn("supervisor: bridging running record failed", "namespace", rec.Namespace, "error", err)
			}
		case rec.AutoStart && !bridged[rec.Namespace] &&
			(rec.Status == string(StateStopped) || rec.Status == "installed"):
			if err := s.Start(ctx, rec.Namespace); err != nil {
				slog.Warn("supervisor: auto-start failed", "namespace", rec.Namespace, "error", err)
			}
		case rec.Status != string(StateRunning) && bridged[rec.Namespace]:
			if err := s.Stop(ctx, rec.Namespace); err != nil {
				slog.Warn("supervisor: unbridging stale record failed", "namespace", rec.Namespace, "error", err)
			}
		}
	}

	for ns := range bridged {
		if !seen[ns] {
			if err := s.Stop(ctx, ns); err != nil {
				slog.Warn("supervisor: unbridging deleted record failed", "namespace", ns, "error", err)
			}
		}
	}
	return nil
}
