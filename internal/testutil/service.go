package testutil

import (
	"testing"
	"time"

	"dms-go/internal/database"
	"dms-go/internal/dms"
	"dms-go/internal/spool"
)

// Test actors known to every Harness.
var (
	Alice = dms.Actor{ID: "alice", Email: "alice@example.com", DisplayName: "Alice"}
	Bob   = dms.Actor{ID: "bob", Email: "bob@example.com", DisplayName: "Bob"}
	Carol = dms.Actor{ID: "carol", Email: "carol@example.com", DisplayName: "Carol"}
)

// HarnessMaxUpload is the spool limit of a Harness.
const HarnessMaxUpload = 1 << 20

// Harness is a fully wired DocumentService over an in-memory database, a
// fault-injecting blob store and a switchable identity. It acts as Alice
// until told otherwise.
type Harness struct {
	Service  *dms.DocumentService
	Registry *dms.Registry
	Ledger   *dms.Ledger
	Chain    *dms.Chain

	DB       *database.SQLiteDatabase
	Nodes    *FailingNodeStore
	Blobs    *FaultyBlobStore
	Identity *StaticIdentity
	Analyzer *StubAnalyzer
	Clock    *StubClock
}

// NewHarness wires a DocumentService for tests. The clock ticks one second
// per reading so timestamps are strictly increasing.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	h := &Harness{
		DB:       NewTestDatabase(t),
		Blobs:    NewFaultyBlobStore(),
		Identity: NewStaticIdentity(Alice, Bob, Carol),
		Analyzer: NewStubAnalyzer(&dms.Analysis{Summary: "stub summary"}),
		Clock:    TickingClock(time.Second),
	}
	h.Nodes = NewFailingNodeStore(h.DB)

	logger := dms.NewNopLogger()
	ids := NewStubIDGenerator()

	h.Registry = dms.NewRegistry(h.Nodes, h.Blobs, logger, h.Clock, ids)
	h.Ledger = dms.NewLedger(h.DB, h.Nodes, logger, h.Clock, ids)
	h.Chain = dms.NewChain(h.DB, h.Registry, logger, h.Clock, ids)
	h.Service = dms.NewDocumentService(h.Registry, h.Ledger, h.Chain,
		spool.NewMemorySpooler(HarnessMaxUpload), h.Identity, h.Analyzer, logger)
	return h
}

// ActAs switches the current actor.
func (h *Harness) ActAs(a dms.Actor) {
	h.Identity.ActAs(a.ID)
}
