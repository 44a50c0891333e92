package dialog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/lflachs/cocorico-voice/pkg/audioio"
	"github.com/lflachs/cocorico-voice/pkg/capture"
	"github.com/lflachs/cocorico-voice/pkg/inventory"
	"github.com/lflachs/cocorico-voice/pkg/speech"
)

// harness wires an engine over mock audio, mock speech services and a
// mock repository. The scripted source produces a short voiced burst
// then silence on every recording turn, so each turn finalizes a
// non-empty clip instantly; turn content comes from the speech mock's
// transcript script.
type harness struct {
	engine *Engine
	repo   *inventory.Mock
	svc    *speech.Mock
	guard  *audioio.Guard
}

func newHarness(t *testing.T, repo *inventory.Mock) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	acfg := audioio.Config{
		Backend:        audioio.BackendMock,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
	source := audioio.NewMockSource(acfg, logger,
		audioio.WithScript([]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0}))
	guard := audioio.NewGuard()
	recorder := capture.NewRecorder(source, guard, logger)

	sink := audioio.NewMockSink(acfg, logger)
	if err := sink.Start(context.Background()); err != nil {
		t.Fatalf("sink start: %v", err)
	}

	svc := speech.NewMock()
	cfg := DefaultConfig()
	cfg.Logger = logger
	engine := NewEngine(repo, speech.Service{
		Transcriber: svc,
		Interpreter: svc,
		Synthesizer: svc,
	}, recorder, sink, cfg)

	return &harness{engine: engine, repo: repo, svc: svc, guard: guard}
}

func (h *harness) run(t *testing.T) *Session {
	t.Helper()
	sess := h.engine.NewSession()
	if err := h.engine.RunCommand(context.Background(), sess); err != nil {
		t.Fatalf("RunCommand: %v", err)
	}
	return sess
}

func (h *harness) spokenContaining(sub string) int {
	n := 0
	for _, s := range h.svc.Spoken {
		if strings.Contains(s, sub) {
			n++
		}
	}
	return n
}

func addCommand(items ...speech.ProductReference) *speech.ParsedCommand {
	return &speech.ParsedCommand{
		Action:             speech.ActionAdd,
		Items:              items,
		Confidence:         0.9,
		NeedsConfirmation:  true,
		ConfirmationPrompt: "Shall I go ahead?",
	}
}

func TestScenarioCreateUnknownProduct(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	h.svc.Transcripts = []string{"add 3 kilograms of tomatoes", "yes"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "tomatoes", Quantity: 3, Unit: "kg"}),
	}

	sess := h.run(t)

	if n := h.repo.CallCount("Create"); n != 1 {
		t.Fatalf("Create calls = %d, want 1", n)
	}
	if n := h.repo.CallCount("AdjustQuantity"); n != 0 {
		t.Errorf("AdjustQuantity calls = %d, want 0", n)
	}

	products, _ := h.repo.List(context.Background())
	if len(products) != 1 {
		t.Fatalf("products = %+v", products)
	}
	p := products[0]
	if p.Name != "tomatoes" || p.Quantity != 3 || p.Unit != "kg" || p.UnitPrice != nil {
		t.Errorf("created product = %+v", p)
	}

	if !sess.Queue.IsEmpty() {
		t.Error("queue must be empty at idle")
	}
	if sess.State() != StateIdle {
		t.Errorf("state = %v, want idle", sess.State())
	}
	if h.spokenContaining("unit price") != 1 {
		t.Errorf("expected one price question, spoken: %v", h.svc.Spoken)
	}
}

func TestScenarioTwoCandidatesReplyPicksOne(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Gala apple", Quantity: 5, Unit: "kg"},
		inventory.Product{Name: "Pink Lady apple", Quantity: 2, Unit: "kg"},
	)
	h := newHarness(t, repo)
	h.svc.Transcripts = []string{"add 2 kilos of apples", "gala"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "apple", Quantity: 2, Unit: "kg"}),
	}

	h.run(t)

	if n := h.repo.CallCount("Create"); n != 0 {
		t.Fatalf("Create calls = %d, want 0", n)
	}
	if n := h.repo.CallCount("AdjustQuantity"); n != 1 {
		t.Fatalf("AdjustQuantity calls = %d, want 1", n)
	}

	got, _ := h.repo.FindByName(context.Background(), "Gala apple")
	if len(got) != 1 || got[0].Quantity != 7 {
		t.Errorf("Gala apple = %+v, want quantity 7", got)
	}
}

func TestScenarioSilentConfirmationRepromptsNotNo(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Tomatoes", Quantity: 1, Unit: "kg"},
	)
	h := newHarness(t, repo)
	// Second transcript is silence; yes comes only on the retry.
	h.svc.Transcripts = []string{"add 3 kilograms of tomatoes", "", "yes"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "tomatoes", Quantity: 3, Unit: "kg"}),
	}

	h.run(t)

	if h.spokenContaining(phrase("en", "retry")) != 1 {
		t.Errorf("expected the fixed retry message, spoken: %v", h.svc.Spoken)
	}
	if n := h.repo.CallCount("AdjustQuantity"); n != 1 {
		t.Fatalf("AdjustQuantity calls = %d, want 1 (silence must not read as no)", n)
	}
}

func TestDecliningSingleCandidateCreatesSpokenName(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Gala apple", Quantity: 5, Unit: "kg"},
	)
	h := newHarness(t, repo)
	h.svc.Transcripts = []string{"add one gala", "no", "2 euros"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "gala", Quantity: 1}),
	}

	h.run(t)

	if n := h.repo.CallCount("Create"); n != 1 {
		t.Fatalf("Create calls = %d, want 1", n)
	}
	products, _ := h.repo.List(context.Background())
	var created *inventory.Product
	for i := range products {
		if products[i].Name == "gala" {
			created = &products[i]
		}
	}
	if created == nil {
		t.Fatalf("no product under the spoken name: %+v", products)
	}
	if created.UnitPrice == nil || *created.UnitPrice != 2 {
		t.Errorf("price = %v, want 2", created.UnitPrice)
	}

	// The candidate itself is untouched.
	gala, _ := h.repo.FindByName(context.Background(), "Gala apple")
	if len(gala) != 1 || gala[0].Quantity != 5 {
		t.Errorf("Gala apple changed: %+v", gala)
	}
}

func TestUnmatchedReplyNeverGuesses(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Gala apple", Quantity: 5, Unit: "kg"},
		inventory.Product{Name: "Pink Lady apple", Quantity: 2, Unit: "kg"},
	)
	h := newHarness(t, repo)
	h.svc.Transcripts = []string{"add apples", "banana", "banana", "banana"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "apple", Quantity: 1}),
	}

	h.run(t)

	if n := h.repo.CallCount("Create") + h.repo.CallCount("AdjustQuantity"); n != 0 {
		t.Fatalf("mutations = %d, want 0", n)
	}
	if h.spokenContaining("cancelled") == 0 {
		t.Errorf("expected a spoken cancellation, spoken: %v", h.svc.Spoken)
	}
}

func TestCancellationStopsSideEffects(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	sess := h.engine.NewSession()

	h.svc.Transcripts = []string{"add 3 kilograms of tomatoes"}
	cmd := addCommand(speech.ProductReference{SpokenName: "tomatoes", Quantity: 3, Unit: "kg"})
	h.svc.InterpretFunc = func(ctx context.Context, text, lang string) (*speech.ParsedCommand, error) {
		// The user closes the dialog while interpretation is in flight.
		sess.Cancel()
		return cmd, nil
	}

	err := h.engine.RunCommand(context.Background(), sess)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}

	if n := h.repo.CallCount("Create") + h.repo.CallCount("AdjustQuantity") + h.repo.CallCount("SetPrice"); n != 0 {
		t.Errorf("mutations after cancel = %d, want 0", n)
	}
	if n := h.guard.OpenHandles(); n != 0 {
		t.Errorf("open device handles = %d, want 0", n)
	}
	if len(h.svc.Spoken) != 0 {
		t.Errorf("no prompt may be spoken after cancel, got %v", h.svc.Spoken)
	}
	if sess.State() != StateIdle {
		t.Errorf("state = %v, want idle", sess.State())
	}
}

func TestQueueDrainsInOrder(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	h.svc.Transcripts = []string{
		"add clams saffron and vanilla",
		"yes", "yes", "yes", // create each unknown product
		"2 euros", "3,50", // prices; third answer is silence
	}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(
			speech.ProductReference{SpokenName: "clams", Quantity: 1, Unit: "kg"},
			speech.ProductReference{SpokenName: "saffron", Quantity: 2, Unit: "g"},
			speech.ProductReference{SpokenName: "vanilla", Quantity: 3, Unit: "piece"},
		),
	}

	sess := h.run(t)

	var questions []string
	for _, s := range h.svc.Spoken {
		if strings.Contains(s, "unit price") {
			questions = append(questions, s)
		}
	}
	if len(questions) != 3 {
		t.Fatalf("price questions = %d, want 3: %v", len(questions), questions)
	}
	for i, name := range []string{"clams", "saffron", "vanilla"} {
		if !strings.Contains(questions[i], name) {
			t.Errorf("question %d = %q, want it to ask about %s", i, questions[i], name)
		}
	}

	if n := h.repo.CallCount("Create"); n != 3 {
		t.Fatalf("Create calls = %d, want 3", n)
	}
	products, _ := h.repo.List(context.Background())
	prices := map[string]*float64{}
	for _, p := range products {
		prices[p.Name] = p.UnitPrice
	}
	if prices["clams"] == nil || *prices["clams"] != 2 {
		t.Errorf("clams price = %v, want 2", prices["clams"])
	}
	if prices["saffron"] == nil || *prices["saffron"] != 3.5 {
		t.Errorf("saffron price = %v, want 3.5", prices["saffron"])
	}
	if prices["vanilla"] != nil {
		t.Errorf("vanilla price = %v, want nil", prices["vanilla"])
	}

	if !sess.Queue.IsEmpty() || sess.State() != StateIdle {
		t.Errorf("queue empty=%v state=%v, want empty and idle", sess.Queue.IsEmpty(), sess.State())
	}
}

func TestNegationOnMatchedAddBecomesCreation(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Tomato", Quantity: 4, Unit: "kg"},
	)
	h := newHarness(t, repo)
	// Exact match resolves silently; "no" at the read-back means "not
	// that product", so the command proceeds as a creation.
	h.svc.Transcripts = []string{"add 2 kilos of tomato", "no"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "tomato", Quantity: 2, Unit: "kg"}),
	}

	h.run(t)

	if n := h.repo.CallCount("AdjustQuantity"); n != 0 {
		t.Errorf("AdjustQuantity calls = %d, want 0", n)
	}
	if n := h.repo.CallCount("Create"); n != 1 {
		t.Fatalf("Create calls = %d, want 1", n)
	}
}

func TestRemoveUnknownProduct(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	h.svc.Transcripts = []string{"remove the octopus"}
	h.svc.Commands = []*speech.ParsedCommand{{
		Action:            speech.ActionRemove,
		Items:             []speech.ProductReference{{SpokenName: "octopus", Quantity: 1}},
		Confidence:        0.9,
		NeedsConfirmation: true,
	}}

	h.run(t)

	if n := h.repo.CallCount("Create") + h.repo.CallCount("AdjustQuantity"); n != 0 {
		t.Errorf("mutations = %d, want 0", n)
	}
	if h.spokenContaining("octopus") == 0 {
		t.Errorf("expected a not-found message, spoken: %v", h.svc.Spoken)
	}
}

func TestCheckNarratesStock(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Flour", Quantity: 10, Unit: "kg"},
	)
	h := newHarness(t, repo)
	h.svc.Transcripts = []string{"how much flour do we have"}
	h.svc.Commands = []*speech.ParsedCommand{{
		Action:     speech.ActionCheck,
		Items:      []speech.ProductReference{{SpokenName: "flour"}},
		Confidence: 0.95,
	}}

	h.run(t)

	if h.repo.CallCount("AdjustQuantity") != 0 {
		t.Error("check must not mutate")
	}
	if h.spokenContaining("Flour") == 0 || h.spokenContaining("10") == 0 {
		t.Errorf("expected stock narration, spoken: %v", h.svc.Spoken)
	}
}

func TestListEmptyInventory(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	h.svc.Transcripts = []string{"what's in stock"}
	h.svc.Commands = []*speech.ParsedCommand{{Action: speech.ActionList, Confidence: 1}}

	h.run(t)

	if h.spokenContaining("empty") == 0 {
		t.Errorf("expected empty-inventory narration, spoken: %v", h.svc.Spoken)
	}
}

func TestLowConfidenceIsFlaggedNotRejected(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Tomatoes", Quantity: 1, Unit: "kg"},
	)
	h := newHarness(t, repo)
	h.svc.Transcripts = []string{"add tomatoes maybe", "yes"}
	cmd := addCommand(speech.ProductReference{SpokenName: "tomatoes", Quantity: 1, Unit: "kg"})
	cmd.Confidence = 0.4
	h.svc.Commands = []*speech.ParsedCommand{cmd}

	h.run(t)

	if h.spokenContaining("not sure") == 0 {
		t.Errorf("low confidence must be flagged, spoken: %v", h.svc.Spoken)
	}
	if n := h.repo.CallCount("AdjustQuantity"); n != 1 {
		t.Errorf("AdjustQuantity calls = %d, want 1 (low confidence is not a rejection)", n)
	}
}

func TestManualConfirmOverride(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Tomatoes", Quantity: 1, Unit: "kg"},
	)
	h := newHarness(t, repo)
	h.svc.Transcripts = []string{"add tomatoes"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "tomatoes", Quantity: 1, Unit: "kg"}),
	}

	sess := h.engine.NewSession()
	sess.Confirm(true) // UI button pressed ahead of the spoken turn
	if err := h.engine.RunCommand(context.Background(), sess); err != nil {
		t.Fatalf("RunCommand: %v", err)
	}

	if n := h.repo.CallCount("AdjustQuantity"); n != 1 {
		t.Errorf("AdjustQuantity calls = %d, want 1", n)
	}
}

func TestSecondSessionRefused(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	h.svc.Transcripts = []string{"add tomatoes"}

	block := make(chan struct{})
	h.svc.InterpretFunc = func(ctx context.Context, text, lang string) (*speech.ParsedCommand, error) {
		<-block
		return nil, speech.ErrBadInterpretation
	}

	done := make(chan error, 1)
	go func() {
		done <- h.engine.RunCommand(context.Background(), h.engine.NewSession())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !h.engine.Active() {
		if time.Now().After(deadline) {
			t.Fatal("first session never became active")
		}
		time.Sleep(time.Millisecond)
	}

	if err := h.engine.RunCommand(context.Background(), h.engine.NewSession()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive, got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Errorf("first session: %v", err)
	}
}

func TestMixedCommandStillConfirmsResolvedItems(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Flour", Quantity: 10, Unit: "kg"},
	)
	h := newHarness(t, repo)
	// "flour" resolves exactly with no turn; "dragonfruit" goes through a
	// creation turn. That turn confirms only dragonfruit, so flour still
	// needs a read-back, and a "no" there must not touch its stock.
	h.svc.Transcripts = []string{"add flour and dragonfruit", "yes", "no"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(
			speech.ProductReference{SpokenName: "flour", Quantity: 1, Unit: "kg"},
			speech.ProductReference{SpokenName: "dragonfruit", Quantity: 2},
		),
	}

	h.run(t)

	var readBack string
	for _, s := range h.svc.Spoken {
		if strings.Contains(s, "correct?") {
			if readBack != "" {
				t.Fatalf("more than one read-back, spoken: %v", h.svc.Spoken)
			}
			readBack = s
		}
	}
	if readBack == "" {
		t.Fatalf("no read-back for the resolved item, spoken: %v", h.svc.Spoken)
	}
	if !strings.Contains(readBack, "flour") || strings.Contains(readBack, "dragonfruit") {
		t.Errorf("read-back = %q, want only the unconfirmed item", readBack)
	}

	// "no" strips the flour match; both items end up created.
	if n := h.repo.CallCount("AdjustQuantity"); n != 0 {
		t.Errorf("AdjustQuantity calls = %d, want 0 after the declined read-back", n)
	}
	if n := h.repo.CallCount("Create"); n != 2 {
		t.Errorf("Create calls = %d, want 2", n)
	}
	flour, _ := h.repo.Get(context.Background(), "p1")
	if flour.Quantity != 10 {
		t.Errorf("Flour changed: %+v", flour)
	}
}

func TestMixedCommandAcceptedReadBackMutates(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Flour", Quantity: 10, Unit: "kg"},
	)
	h := newHarness(t, repo)
	// Creation turn for dragonfruit, read-back yes for flour, silence at
	// the price question.
	h.svc.Transcripts = []string{"add flour and dragonfruit", "yes", "yes"}
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(
			speech.ProductReference{SpokenName: "flour", Quantity: 1, Unit: "kg"},
			speech.ProductReference{SpokenName: "dragonfruit", Quantity: 2},
		),
	}

	h.run(t)

	if n := h.repo.CallCount("AdjustQuantity"); n != 1 {
		t.Errorf("AdjustQuantity calls = %d, want 1", n)
	}
	if n := h.repo.CallCount("Create"); n != 1 {
		t.Errorf("Create calls = %d, want 1", n)
	}
	flour, _ := h.repo.Get(context.Background(), "p1")
	if flour.Quantity != 11 {
		t.Errorf("Flour = %+v, want quantity 11", flour)
	}
}

func TestPriceTranscriptionFailureRetriesSameItem(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "saffron", Quantity: 2, Unit: "g"}),
	}

	// Price answer fails in transit once; the same item is asked again
	// rather than dropped from the queue.
	replies := []string{"add saffron", "yes"}
	calls := 0
	h.svc.TranscribeFunc = func(ctx context.Context, clip *capture.Clip, lang string) (string, error) {
		calls++
		switch {
		case calls <= len(replies):
			return replies[calls-1], nil
		case calls == len(replies)+1:
			return "", errors.New("ws: connection reset")
		default:
			return "4 euros", nil
		}
	}

	sess := h.run(t)

	if n := h.spokenContaining("unit price"); n != 2 {
		t.Fatalf("price questions = %d, want 2 (failure then retry), spoken: %v", n, h.svc.Spoken)
	}
	if n := h.repo.CallCount("Create"); n != 1 {
		t.Fatalf("Create calls = %d, want 1", n)
	}
	products, _ := h.repo.List(context.Background())
	if len(products) != 1 || products[0].UnitPrice == nil || *products[0].UnitPrice != 4 {
		t.Errorf("products = %+v, want saffron at price 4", products)
	}
	if !sess.Queue.IsEmpty() || sess.State() != StateIdle {
		t.Errorf("queue empty=%v state=%v, want empty and idle", sess.Queue.IsEmpty(), sess.State())
	}
}

func TestPriceTranscriptionBudgetFallsBackToNoPrice(t *testing.T) {
	h := newHarness(t, inventory.NewMock())
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "saffron", Quantity: 2, Unit: "g"}),
	}

	replies := []string{"add saffron", "yes"}
	calls := 0
	h.svc.TranscribeFunc = func(ctx context.Context, clip *capture.Clip, lang string) (string, error) {
		calls++
		if calls <= len(replies) {
			return replies[calls-1], nil
		}
		return "", errors.New("ws: connection reset")
	}

	sess := h.run(t)

	if n := h.spokenContaining("unit price"); n != DefaultMaxConfirmRetries {
		t.Fatalf("price questions = %d, want %d, spoken: %v", n, DefaultMaxConfirmRetries, h.svc.Spoken)
	}

	// The item is created anyway; a lost answer never blocks the queue.
	if n := h.repo.CallCount("Create"); n != 1 {
		t.Fatalf("Create calls = %d, want 1", n)
	}
	products, _ := h.repo.List(context.Background())
	if len(products) != 1 || products[0].UnitPrice != nil {
		t.Errorf("products = %+v, want saffron with no price", products)
	}
	if !sess.Queue.IsEmpty() || sess.State() != StateIdle {
		t.Errorf("queue empty=%v state=%v, want empty and idle", sess.Queue.IsEmpty(), sess.State())
	}
}

func TestWriteFailureRetriesViaConfirmation(t *testing.T) {
	repo := inventory.NewMock(
		inventory.Product{Name: "Tomatoes", Quantity: 1, Unit: "kg"},
	)
	h := newHarness(t, repo)
	h.svc.Commands = []*speech.ParsedCommand{
		addCommand(speech.ProductReference{SpokenName: "tomatoes", Quantity: 2, Unit: "kg"}),
	}
	h.repo.Errors["AdjustQuantity"] = errors.New("disk full")

	// Replies run in the pipeline's own goroutine, so the third one can
	// clear the write failure before the retry is attempted.
	replies := []string{"add tomatoes", "yes", "yes"}
	calls := 0
	h.svc.TranscribeFunc = func(ctx context.Context, clip *capture.Clip, lang string) (string, error) {
		text := replies[calls]
		calls++
		if calls == len(replies) {
			delete(h.repo.Errors, "AdjustQuantity")
		}
		return text, nil
	}

	h.run(t)

	if n := h.repo.CallCount("AdjustQuantity"); n != 2 {
		t.Errorf("AdjustQuantity calls = %d, want 2 (failure then retry)", n)
	}
	if h.spokenContaining(phrase("en", "write_failed")) == 0 {
		t.Errorf("expected the retry question, spoken: %v", h.svc.Spoken)
	}
}
