// Package cleanup runs the background maintenance loops: suspension expiry
// sweeps, evidence-hold expiry sweeps, and message retention purges. The
// purge re-checks hold coverage per message at deletion time, so a hold
// created after a message was scheduled for deletion still protects it.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haven-msg/sentinel/moderation/evidence"
	"github.com/haven-msg/sentinel/moderation/store"
	"github.com/haven-msg/sentinel/moderation/suspension"
)

type Scheduler struct {
	Logger      *slog.Logger
	Content     store.ContentStore
	Audit       store.AuditLog
	Suspensions *suspension.Manager
	Evidence    *evidence.Manager

	// how often each loop fires; zero means the 5 minute default
	Interval  time.Duration
	BatchSize int
}

const (
	OpSweepSuspensions = "sweep_suspensions"
	OpSweepHolds       = "sweep_holds"
	OpPurgeMessages    = "purge_messages"
)

// Run drives all maintenance loops until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return s.loop(ctx, interval, OpSweepSuspensions) })
	eg.Go(func() error { return s.loop(ctx, interval, OpSweepHolds) })
	eg.Go(func() error { return s.loop(ctx, interval, OpPurgeMessages) })
	return eg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, op string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := s.runOp(ctx, op)
			if err != nil {
				s.Logger.Error("maintenance op failed", "op", op, "err", err)
				continue
			}
			if n > 0 {
				s.Logger.Info("maintenance op complete", "op", op, "processed", n)
			}
		}
	}
}

// RunMaintenance executes the named operations once, immediately. An empty
// list runs everything. Returns per-op processed counts.
func (s *Scheduler) RunMaintenance(ctx context.Context, ops []string) (map[string]int, error) {
	if len(ops) == 0 {
		ops = []string{OpSweepSuspensions, OpSweepHolds, OpPurgeMessages}
	}
	results := make(map[string]int, len(ops))
	for _, op := range ops {
		n, err := s.runOp(ctx, op)
		if err != nil {
			return results, fmt.Errorf("maintenance op %s: %w", op, err)
		}
		results[op] = n
	}
	return results, nil
}

func (s *Scheduler) runOp(ctx context.Context, op string) (int, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 100
	}
	switch op {
	case OpSweepSuspensions:
		n, err := s.Suspensions.SweepExpired(ctx, batch)
		suspensionsSwept.Add(float64(n))
		return n, err
	case OpSweepHolds:
		n, err := s.Evidence.SweepExpiredHolds(ctx, batch)
		holdsSwept.Add(float64(n))
		return n, err
	case OpPurgeMessages:
		return s.purgeExpiredMessages(ctx, batch)
	}
	return 0, fmt.Errorf("unknown maintenance op: %s", op)
}

// purgeExpiredMessages deletes messages past their auto-delete time, in
// bounded batches. A message under any blocking hold is skipped; one bad row
// never stops the batch.
func (s *Scheduler) purgeExpiredMessages(ctx context.Context, batch int) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		msgs, err := s.Content.ExpiredMessages(ctx, time.Now(), batch)
		if err != nil {
			return total, err
		}
		if len(msgs) == 0 {
			return total, nil
		}
		skipped := 0
		for i := range msgs {
			msg := &msgs[i]
			blocked, err := s.Evidence.BlocksPurge(ctx, msg)
			if err != nil {
				s.Logger.Error("hold check failed, keeping message", "err", err, "messageID", msg.ID)
				skipped++
				continue
			}
			if blocked {
				purgesBlocked.Inc()
				skipped++
				continue
			}
			if err := s.Content.DeleteMessage(ctx, msg.ID); err != nil {
				s.Logger.Error("failed to purge message", "err", err, "messageID", msg.ID)
				skipped++
				continue
			}
			messagesPurged.Inc()
			s.appendAudit(ctx, "message_purged", msg.ID, "retention expiry")
			total++
		}
		// every remaining row is hold-protected or erroring; stop rather
		// than loop over the same batch forever
		if skipped == len(msgs) {
			return total, nil
		}
		if len(msgs) < batch {
			return total, nil
		}
	}
}

func (s *Scheduler) appendAudit(ctx context.Context, action, targetID, note string) {
	entry := &store.AuditEntry{
		Action:     action,
		ActorID:    "system",
		TargetType: "message",
		TargetID:   targetID,
		Success:    true,
		Note:       note,
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		s.Logger.Error("failed to append audit entry", "err", err, "action", action)
	}
}
