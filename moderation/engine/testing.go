package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/haven-msg/sentinel/moderation/analysis"
	"github.com/haven-msg/sentinel/moderation/cachestore"
	"github.com/haven-msg/sentinel/moderation/countstore"
	"github.com/haven-msg/sentinel/moderation/evidence"
	"github.com/haven-msg/sentinel/moderation/notify"
	"github.com/haven-msg/sentinel/moderation/store"
	"github.com/haven-msg/sentinel/moderation/suspension"
)

// EngineTestFixture returns an engine on in-memory stores with the
// deterministic keyword analyzer, plus the shared MemStore so tests can seed
// and inspect state directly.
func EngineTestFixture() (*Engine, *store.MemStore) {
	logger := slog.Default()
	mem := store.NewMemStore()

	susp := suspension.NewManager(logger, mem, mem)
	ev := &evidence.Manager{
		Logger:  logger,
		Holds:   mem,
		Cases:   mem,
		Flags:   mem,
		Alerts:  mem,
		Content: mem,
		Audit:   mem,
		Gateway: StubGateway{Reference: "AGY-TEST-001"},
	}

	eng := &Engine{
		Logger:        logger,
		Policy:        DefaultThresholds(),
		Analyzer:      analysis.NewKeywordAnalyzer(analysis.DefaultTerms()),
		Flags:         mem,
		Alerts:        mem,
		Audit:         mem,
		Content:       mem,
		Behavior:      mem,
		Suspensions:   susp,
		Evidence:      ev,
		Counters:      countstore.NewMemCountStore(),
		Cache:         cachestore.NewMemCacheStore(100, time.Hour),
		Notifier:      notify.Null{},
		ScanBatchSize: 10,
	}

	mem.PutConversation(store.Conversation{
		ID:             "conv-1",
		Type:           store.ConversationDirect,
		ParticipantIDs: []string{"user-1", "user-2"},
	})
	mem.PutUser(store.UserAccount{ID: "user-1", Handle: "alice", DisplayName: "Alice"})
	mem.PutUser(store.UserAccount{ID: "user-2", Handle: "bob", DisplayName: "Bob"})

	return eng, mem
}

// StubGateway is an agency gateway for tests: it accepts every submission
// with a fixed reference, or fails every one when Err is set.
type StubGateway struct {
	Reference string
	Err       error
}

func (g StubGateway) Submit(ctx context.Context, report *store.CaseReport) (string, error) {
	if g.Err != nil {
		return "", g.Err
	}
	return g.Reference, nil
}

var _ evidence.AgencyGateway = StubGateway{}
