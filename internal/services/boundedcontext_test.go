package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/contextdesk-backend/internal/apperr"
	"github.com/yungbote/contextdesk-backend/internal/chunking"
	"github.com/yungbote/contextdesk-backend/internal/types"
)

type putCall struct {
	namespace string
	doc       *chunking.ChunkedDocument
	metadata  map[string]string
}

type fakeDocumentStore struct {
	puts    []putCall
	deletes []string
}

func (f *fakeDocumentStore) PutDocument(ctx context.Context, namespace string, doc *chunking.ChunkedDocument, metadata map[string]string) error {
	f.puts = append(f.puts, putCall{namespace: namespace, doc: doc, metadata: metadata})
	return nil
}

func (f *fakeDocumentStore) DeleteDocument(ctx context.Context, namespace, documentID string) error {
	f.deletes = append(f.deletes, namespace+"/"+documentID)
	return nil
}

func TestBoundedContextCreateStartsLocked(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology", Domain: "biology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if bc.LockStatus != types.LockStatusLocked {
		t.Fatalf("lock status: want=%q got=%q", types.LockStatusLocked, bc.LockStatus)
	}
	if bc.Version != 1 {
		t.Fatalf("version: want=1 got=%d", bc.Version)
	}
	if bc.Cost != 0 {
		t.Fatalf("cost: want=0 got=%f", bc.Cost)
	}

	_, err = svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if !errors.Is(err, apperr.ErrDuplicateName) {
		t.Fatalf("duplicate name: want ErrDuplicateName, got %v", err)
	}
}

func TestBoundedContextCreateWithInitialPayload(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{
		Name:    "Biochemistry",
		Payload: json.RawMessage(`{"seed":"enzyme kinetics"}`),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bc.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["seed"] != "enzyme kinetics" {
		t.Fatalf("initial payload not stored: %v", payload)
	}
	if bc.ComplexityScore <= 0 {
		t.Fatalf("seeded context must have positive complexity, got %f", bc.ComplexityScore)
	}

	_, err = svc.Create(ctx, CreateContextInput{Name: "Broken", Payload: json.RawMessage(`[1,2]`)})
	if err == nil {
		t.Fatalf("non-object initial payload must fail")
	}
}

func TestTeachRequiresUnlock(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, err = svc.Teach(ctx, bc.ID, TeachInput{Input: "axon hillock", Learned: json.RawMessage(`{"axon":"hillock"}`)})
	if !errors.Is(err, apperr.ErrContextLocked) {
		t.Fatalf("teach while locked: want ErrContextLocked, got %v", err)
	}

	// Nothing about the context may change on a refused teach.
	after, err := svc.Get(ctx, bc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Version != 1 || after.Cost != 0 {
		t.Fatalf("refused teach mutated context: version=%d cost=%f", after.Version, after.Cost)
	}
}

func TestUnlockThenTeach(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	window, err := svc.Unlock(ctx, bc.ID, time.Hour, "lab-lead", "scheduled review")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if !window.Covers(time.Now().UTC()) {
		t.Fatalf("fresh window must cover now: %+v", window)
	}

	res, err := svc.Teach(ctx, bc.ID, TeachInput{
		Source:     "lecture-3",
		Input:      "ion channel gating",
		Learned:    json.RawMessage(`{"gating":"voltage-dependent"}`),
		Confidence: 0.8,
	})
	if err != nil {
		t.Fatalf("Teach: %v", err)
	}
	if res.Cost <= 0 {
		t.Fatalf("teaching cost must be positive, got %f", res.Cost)
	}
	if res.Version != 2 {
		t.Fatalf("version after teach: want=2 got=%d", res.Version)
	}

	after, err := svc.Get(ctx, bc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Cost != res.Cost {
		t.Fatalf("context cost: want=%f got=%f", res.Cost, after.Cost)
	}
	var payload map[string]any
	if err := json.Unmarshal(after.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["gating"] != "voltage-dependent" {
		t.Fatalf("learned payload not merged: %v", payload)
	}

	session, err := env.sessionRepo.GetByID(ctx, nil, res.SessionID)
	if err != nil {
		t.Fatalf("GetByID session: %v", err)
	}
	if session == nil || session.Cost != res.Cost {
		t.Fatalf("session cost must mirror teaching cost: %+v", session)
	}
}

func TestTeachContinuesSession(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, bc.ID, time.Hour, "", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	first, err := svc.Teach(ctx, bc.ID, TeachInput{Input: "one", Learned: json.RawMessage(`{"a":1}`)})
	if err != nil {
		t.Fatalf("Teach: %v", err)
	}
	second, err := svc.Teach(ctx, bc.ID, TeachInput{SessionID: &first.SessionID, Input: "two", Learned: json.RawMessage(`{"b":2}`)})
	if err != nil {
		t.Fatalf("Teach continuation: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("continuation must reuse session: want=%s got=%s", first.SessionID, second.SessionID)
	}

	entries, err := env.teachRepo.GetBySessionID(ctx, nil, first.SessionID)
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entry count: want=2 got=%d", len(entries))
	}
	if entries[0].Position != 0 || entries[1].Position != 1 {
		t.Fatalf("positions must be ordered: %d, %d", entries[0].Position, entries[1].Position)
	}

	session, err := env.sessionRepo.GetByID(ctx, nil, first.SessionID)
	if err != nil {
		t.Fatalf("GetByID session: %v", err)
	}
	want := first.Cost + second.Cost
	if diff := session.Cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("session cost: want=%f got=%f", want, session.Cost)
	}
}

func TestTeachRejectedOutsideWindow(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, bc.ID, time.Hour, "", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	// Step past the window; the stale unlocked flag alone is not enough.
	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = svc.Teach(ctx, bc.ID, TeachInput{Input: "late", Learned: json.RawMessage(`{"x":1}`)})
	if !errors.Is(err, apperr.ErrContextLocked) {
		t.Fatalf("teach after window: want ErrContextLocked, got %v", err)
	}
}

func TestLockStopsUpdates(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, bc.ID, time.Hour, "", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := svc.Lock(ctx, bc.ID, "review over"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	_, err = svc.Update(ctx, bc.ID, json.RawMessage(`{"x":1}`), "late correction")
	if !errors.Is(err, apperr.ErrContextLocked) {
		t.Fatalf("update after lock: want ErrContextLocked, got %v", err)
	}
}

func TestUpdateMergesPayloadAndBumpsVersion(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, bc.ID, time.Hour, "", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	updated, err := svc.Update(ctx, bc.ID, json.RawMessage(`{"summary":"draft"}`), "initial summary")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("version: want=2 got=%d", updated.Version)
	}
	updated, err = svc.Update(ctx, bc.ID, json.RawMessage(`{"summary":"final","reviewed":true}`), "final summary")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 3 {
		t.Fatalf("version: want=3 got=%d", updated.Version)
	}
	var payload map[string]any
	if err := json.Unmarshal(updated.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["summary"] != "final" || payload["reviewed"] != true {
		t.Fatalf("payload after updates: %v", payload)
	}

	_, err = svc.Update(ctx, bc.ID, json.RawMessage(`{"x":1}`), "")
	if err == nil {
		t.Fatalf("update without reason must fail")
	}
}

func TestComplexityScoreNeverDecreases(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	peer, err := svc.Create(ctx, CreateContextInput{Name: "Biochemistry"})
	if err != nil {
		t.Fatalf("Create peer: %v", err)
	}
	if _, err := svc.Unlock(ctx, bc.ID, time.Hour, "", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	var last float64
	step := func(label string) {
		t.Helper()
		cur, err := svc.Get(ctx, bc.ID)
		if err != nil {
			t.Fatalf("Get after %s: %v", label, err)
		}
		if cur.ComplexityScore < last {
			t.Fatalf("complexity decreased after %s: %f -> %f", label, last, cur.ComplexityScore)
		}
		last = cur.ComplexityScore
	}

	step("create")
	if _, err := svc.Teach(ctx, bc.ID, TeachInput{Input: "one", Learned: json.RawMessage(`{"a":"1"}`)}); err != nil {
		t.Fatalf("Teach: %v", err)
	}
	step("teach")
	if _, err := svc.AddRelationship(ctx, bc.ID, peer.ID, "depends_on"); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	step("relationship")
	if _, err := svc.Update(ctx, bc.ID, json.RawMessage(`{"b":"2"}`), "expand"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	step("update")
	if last <= 0 {
		t.Fatalf("complexity must be positive after activity, got %f", last)
	}
}

func TestComplexityScoreHoldsWhenPayloadShrinks(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, bc.ID, time.Hour, "", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	big, err := json.Marshal(map[string]string{"notes": strings.Repeat("n", 8*1024)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	grown, err := svc.Update(ctx, bc.ID, big, "bulk notes")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Replacing the key with a one-byte value shrinks payload bytes;
	// the score must hold at its high-water mark.
	shrunk, err := svc.Update(ctx, bc.ID, json.RawMessage(`{"notes":"n"}`), "condense notes")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if shrunk.ComplexityScore < grown.ComplexityScore {
		t.Fatalf("complexity decreased on shrinking update: %f -> %f", grown.ComplexityScore, shrunk.ComplexityScore)
	}
}

func TestScheduleUnlocksSpacesWindows(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := svc.Create(ctx, CreateContextInput{Name: "Biochemistry"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	windows, err := svc.ScheduleUnlocks(ctx, ScheduleInput{
		ContextIDs:  []uuid.UUID{a.ID, b.ID},
		Frequency:   FrequencyDaily,
		Occurrences: 3,
		Duration:    2 * time.Hour,
		Reason:      "daily review block",
	})
	if err != nil {
		t.Fatalf("ScheduleUnlocks: %v", err)
	}
	if len(windows) != 6 {
		t.Fatalf("window count: want=6 got=%d", len(windows))
	}

	forA, err := env.windowRepo.GetByContextID(ctx, nil, a.ID)
	if err != nil {
		t.Fatalf("GetByContextID: %v", err)
	}
	if len(forA) != 3 {
		t.Fatalf("windows for first context: want=3 got=%d", len(forA))
	}
	for i := 1; i < len(forA); i++ {
		gap := forA[i].StartsAt.Sub(forA[i-1].StartsAt)
		if gap != 24*time.Hour {
			t.Fatalf("daily gap: want=24h got=%v", gap)
		}
	}
	for _, w := range forA {
		if got := w.EndsAt.Sub(w.StartsAt); got != 2*time.Hour {
			t.Fatalf("window duration: want=2h got=%v", got)
		}
	}

	_, err = svc.ScheduleUnlocks(ctx, ScheduleInput{
		ContextIDs: []uuid.UUID{a.ID},
		Frequency:  "hourly",
		Duration:   time.Hour,
	})
	if err == nil {
		t.Fatalf("unknown frequency must fail")
	}
	_, err = svc.ScheduleUnlocks(ctx, ScheduleInput{
		ContextIDs: []uuid.UUID{a.ID, uuid.New()},
		Frequency:  FrequencyWeekly,
		Duration:   time.Hour,
	})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing context: want ErrNotFound, got %v", err)
	}
}

func TestNetworkAggregates(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	network := env.networkService()
	ctx := context.Background()

	a, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	b, err := svc.Create(ctx, CreateContextInput{Name: "Biochemistry"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, a.ID, time.Hour, "", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	taught, err := svc.Teach(ctx, a.ID, TeachInput{Input: "gating", Learned: json.RawMessage(`{"gating":"fast"}`)})
	if err != nil {
		t.Fatalf("Teach: %v", err)
	}
	if _, err := svc.AddRelationship(ctx, a.ID, b.ID, "depends_on"); err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}

	view, err := network.Network(ctx)
	if err != nil {
		t.Fatalf("Network: %v", err)
	}
	if view.TotalContexts != 2 {
		t.Fatalf("total contexts: want=2 got=%d", view.TotalContexts)
	}
	if view.UnlockedContexts != 1 || view.LockedContexts != 1 {
		t.Fatalf("lock split: unlocked=%d locked=%d", view.UnlockedContexts, view.LockedContexts)
	}
	if diff := view.TotalCost - taught.Cost; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("total cost: want=%f got=%f", taught.Cost, view.TotalCost)
	}
	if view.TotalWindows != 1 {
		t.Fatalf("total windows: want=1 got=%d", view.TotalWindows)
	}
	if view.TotalSessions != 1 {
		t.Fatalf("total sessions: want=1 got=%d", view.TotalSessions)
	}
	if view.AverageComplexity <= 0 {
		t.Fatalf("average complexity must be positive, got %f", view.AverageComplexity)
	}

	var withRels *NetworkContext
	for i := range view.Contexts {
		if view.Contexts[i].Context.ID == a.ID {
			withRels = &view.Contexts[i]
		}
	}
	if withRels == nil {
		t.Fatalf("context %s missing from network view", a.ID)
	}
	if len(withRels.Relationships) != 1 || withRels.Relationships[0].PeerContextID != b.ID {
		t.Fatalf("relationships in view: %+v", withRels.Relationships)
	}
}

func TestTeachMirrorsPayloadToDocumentStore(t *testing.T) {
	env := newTestEnv(t)
	store := &fakeDocumentStore{}
	svc := env.boundedContextServiceWithMirror(t, store, 16)
	ctx := context.Background()

	bc, err := svc.Create(ctx, CreateContextInput{Name: "Synaptic Plasticity"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, bc.ID, time.Hour, "lab-lead", "review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := svc.Teach(ctx, bc.ID, TeachInput{
		Source:     "lecture-7",
		Input:      "long-term potentiation",
		Learned:    json.RawMessage(`{"notes":"alpha beta gamma delta epsilon zeta"}`),
		Confidence: 0.9,
	}); err != nil {
		t.Fatalf("Teach: %v", err)
	}

	if len(store.puts) != 1 {
		t.Fatalf("document store puts: want=1 got=%d", len(store.puts))
	}
	put := store.puts[0]
	if put.namespace != "contexts" {
		t.Fatalf("mirror namespace: want=%q got=%q", "contexts", put.namespace)
	}
	if put.doc.ID != bc.ID.String() {
		t.Fatalf("mirror document id: want=%q got=%q", bc.ID.String(), put.doc.ID)
	}
	if put.metadata["context_id"] != bc.ID.String() {
		t.Fatalf("mirror metadata context_id: want=%q got=%q", bc.ID.String(), put.metadata["context_id"])
	}
	if len(put.doc.Chunks) < 2 {
		t.Fatalf("payload must span multiple chunks, got %d", len(put.doc.Chunks))
	}

	after, err := svc.Get(ctx, bc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	codec, _ := chunking.NewCodec(chunking.Config{MaxDocumentBytes: 16, MaxMetadataValueBytes: 64})
	if got := codec.Reassemble(put.doc.Chunks); got != string(after.Payload) {
		t.Fatalf("reassembled mirror: want=%q got=%q", string(after.Payload), got)
	}

	if _, err := svc.Update(ctx, bc.ID, json.RawMessage(`{"status":"reviewed again"}`), "summary pass"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(store.puts) != 2 {
		t.Fatalf("update must mirror too: want=2 puts got=%d", len(store.puts))
	}
}

func TestReconcileLocksRelocksLapsedContexts(t *testing.T) {
	env := newTestEnv(t)
	svc := env.boundedContextService()
	ctx := context.Background()

	lapsed, err := svc.Create(ctx, CreateContextInput{Name: "Neurophysiology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	covered, err := svc.Create(ctx, CreateContextInput{Name: "Pharmacology"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Unlock(ctx, lapsed.ID, time.Hour, "", "short review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if _, err := svc.Unlock(ctx, covered.ID, 4*time.Hour, "", "long review"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	relocked, err := svc.ReconcileLocks(ctx)
	if err != nil {
		t.Fatalf("ReconcileLocks: %v", err)
	}
	if len(relocked) != 1 || relocked[0] != lapsed.ID {
		t.Fatalf("relocked ids: want=[%s] got=%v", lapsed.ID, relocked)
	}

	after, err := svc.Get(ctx, lapsed.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.LockStatus != types.LockStatusLocked {
		t.Fatalf("lapsed context status: want=%q got=%q", types.LockStatusLocked, after.LockStatus)
	}
	still, err := svc.Get(ctx, covered.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if still.LockStatus != types.LockStatusUnlocked {
		t.Fatalf("covered context must stay unlocked, got %q", still.LockStatus)
	}

	again, err := svc.ReconcileLocks(ctx)
	if err != nil {
		t.Fatalf("ReconcileLocks second pass: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second pass must relock nothing, got %v", again)
	}
}
