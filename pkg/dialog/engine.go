package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/lflachs/cocorico-voice/pkg/audioio"
	"github.com/lflachs/cocorico-voice/pkg/capture"
	"github.com/lflachs/cocorico-voice/pkg/inventory"
	"github.com/lflachs/cocorico-voice/pkg/speech"
)

// DefaultMaxConfirmRetries bounds how often an unclear reply is
// re-prompted before the turn falls back to cancellation.
const DefaultMaxConfirmRetries = 3

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	// Lang is the conversation language for new sessions.
	Lang string

	// Voice selects the synthesis voice.
	Voice string

	// MaxConfirmRetries bounds unclear-reply loops.
	MaxConfirmRetries int

	// VAD presets per turn kind.
	CommandVAD capture.VADConfig
	ConfirmVAD capture.VADConfig
	PriceVAD   capture.VADConfig

	Logger *slog.Logger

	// OnState is called on every state transition.
	OnState func(sessionID string, state State)

	// OnTranscript is called with every user and assistant utterance.
	OnTranscript func(sessionID, role, text string)
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		Lang:              "en",
		MaxConfirmRetries: DefaultMaxConfirmRetries,
		CommandVAD:        capture.CommandVAD(),
		ConfirmVAD:        capture.ConfirmVAD(),
		PriceVAD:          capture.PriceVAD(),
		Logger:            slog.Default(),
	}
}

// Engine drives one conversation at a time through the capture,
// transcribe, interpret, disambiguate, confirm, execute and speak steps.
// Each session is a strictly sequential pipeline; the suspension points
// are the capture and service calls, and the session's cancellation flag
// is re-checked after every one of them.
type Engine struct {
	repo     inventory.Repository
	svc      speech.Service
	recorder *capture.Recorder
	sink     audioio.Sink
	disambig *Disambiguator
	cfg      *Config
	logger   *slog.Logger

	active atomic.Bool
}

// NewEngine wires the engine. sink may be nil for a silent engine.
func NewEngine(repo inventory.Repository, svc speech.Service, recorder *capture.Recorder, sink audioio.Sink, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxConfirmRetries <= 0 {
		cfg.MaxConfirmRetries = DefaultMaxConfirmRetries
	}
	if cfg.CommandVAD == (capture.VADConfig{}) {
		cfg.CommandVAD = capture.CommandVAD()
	}
	if cfg.ConfirmVAD == (capture.VADConfig{}) {
		cfg.ConfirmVAD = capture.ConfirmVAD()
	}
	if cfg.PriceVAD == (capture.VADConfig{}) {
		cfg.PriceVAD = capture.PriceVAD()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		repo:     repo,
		svc:      svc,
		recorder: recorder,
		sink:     sink,
		disambig: NewDisambiguator(repo),
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "dialog.engine"),
	}
}

// NewSession creates a session in the engine's language.
func (e *Engine) NewSession() *Session {
	return NewSession(e.cfg.Lang)
}

// Active reports whether a session pipeline is currently running.
func (e *Engine) Active() bool {
	return e.active.Load()
}

// RunCommand runs one full voice command through the pipeline. It
// refuses to start while another session is active. On cancellation it
// returns ErrCancelled with all resources released and no inventory
// mutated after the cancel.
func (e *Engine) RunCommand(ctx context.Context, sess *Session) error {
	if !e.active.CompareAndSwap(false, true) {
		return ErrSessionActive
	}
	defer e.active.Store(false)
	defer e.setState(sess, StateIdle)

	e.logger.Info("session started", "session", sess.ID, "lang", sess.Lang)

	clip, err := e.listen(ctx, sess, e.cfg.CommandVAD)
	if err != nil {
		return err
	}
	if clip.Empty() {
		e.say(ctx, sess, phrase(sess.Lang, "heard_nothing"))
		return nil
	}

	text, err := e.hear(ctx, sess, clip)
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	if strings.TrimSpace(text) == "" {
		e.say(ctx, sess, phrase(sess.Lang, "heard_nothing"))
		return nil
	}

	e.setState(sess, StateInterpreting)
	cmd, err := e.svc.Interpreter.Interpret(ctx, text, sess.Lang)
	if aerr := e.alive(ctx, sess); aerr != nil {
		return aerr
	}
	if err != nil {
		if errors.Is(err, speech.ErrBadInterpretation) {
			e.say(ctx, sess, phrase(sess.Lang, "cannot_process"))
			return nil
		}
		return e.fail(ctx, sess, err)
	}
	sess.Command = cmd
	e.logger.Info("command interpreted",
		"session", sess.ID, "action", cmd.Action, "items", len(cmd.Items),
		"confidence", cmd.Confidence)

	switch cmd.Action {
	case speech.ActionUnknown:
		e.say(ctx, sess, phrase(sess.Lang, "cannot_process"))
		return nil
	case speech.ActionList:
		return e.runList(ctx, sess)
	case speech.ActionCheck:
		return e.runCheck(ctx, sess, cmd)
	}

	if err := e.disambig.Lookup(ctx, cmd); err != nil {
		return e.fail(ctx, sess, err)
	}
	if aerr := e.alive(ctx, sess); aerr != nil {
		return aerr
	}

	// A disambiguation turn doubles as confirmation, but only for its own
	// reference. Every reference the loop skips still needs the read-back.
	covered := make([]bool, len(cmd.Items))
	for i := range cmd.Items {
		ref := &cmd.Items[i]
		if e.disambig.BranchFor(ref) == BranchResolved {
			continue
		}
		if cmd.Action == speech.ActionRemove && len(ref.Candidates) == 0 {
			e.say(ctx, sess, phrasef(sess.Lang, "not_found", ref.SpokenName))
			return nil
		}

		covered[i] = true
		out, err := e.disambigTurn(ctx, sess, ref)
		if errors.Is(err, errUnclear) {
			e.say(ctx, sess, phrase(sess.Lang, "giving_up"))
			return nil
		}
		if err != nil {
			return err
		}
		switch out {
		case OutcomeAbort:
			e.say(ctx, sess, phrase(sess.Lang, "cancelled"))
			return nil
		case OutcomeNew:
			if cmd.Action == speech.ActionRemove {
				e.say(ctx, sess, phrasef(sess.Lang, "not_found", ref.SpokenName))
				return nil
			}
		}
	}

	var pending []int
	for i := range cmd.Items {
		if !covered[i] {
			pending = append(pending, i)
		}
	}
	if cmd.NeedsConfirmation && len(pending) > 0 {
		prompt := cmd.ConfirmationPrompt
		if prompt == "" || len(pending) < len(cmd.Items) {
			// The service prompt covers the whole command; after a partial
			// set of turns only the remaining references are read back.
			prompt = buildConfirmPrompt(sess.Lang, cmd, pending)
		}
		if cmd.LowConfidence() {
			prompt = phrase(sess.Lang, "unsure") + " " + prompt
		}

		yes, err := e.confirmTurn(ctx, sess, prompt)
		if errors.Is(err, errUnclear) {
			e.say(ctx, sess, phrase(sess.Lang, "giving_up"))
			return nil
		}
		if err != nil {
			return err
		}
		if !yes {
			// A "no" on an add with a matched product means "not that
			// product", so the matches under the read-back are stripped and
			// those references proceed as new-product creations under the
			// spoken name.
			if !(cmd.Action == speech.ActionAdd && stripMatches(cmd, pending)) {
				e.say(ctx, sess, phrase(sess.Lang, "cancelled"))
				return nil
			}
		}
	}

	if err := e.execute(ctx, sess, cmd); err != nil {
		return err
	}
	return e.drainQueue(ctx, sess)
}

// alive reports whether the session may continue.
func (e *Engine) alive(ctx context.Context, sess *Session) error {
	if sess.Cancelled() {
		return ErrCancelled
	}
	return ctx.Err()
}

func (e *Engine) setState(sess *Session, st State) {
	sess.setState(st)
	e.logger.Debug("state", "session", sess.ID, "state", st.String())
	if e.cfg.OnState != nil {
		e.cfg.OnState(sess.ID, st)
	}
}

// listen records one clip with the given VAD tuning. The device is held
// only for the duration of the call.
func (e *Engine) listen(ctx context.Context, sess *Session, vad capture.VADConfig) (*capture.Clip, error) {
	if err := e.alive(ctx, sess); err != nil {
		return nil, err
	}
	e.setState(sess, StateRecording)

	clip, err := e.recorder.Record(ctx, vad)
	if err != nil {
		return nil, err
	}
	if err := e.alive(ctx, sess); err != nil {
		return nil, err
	}
	return clip, nil
}

// hear transcribes a clip and reports the user's words to the hook.
func (e *Engine) hear(ctx context.Context, sess *Session, clip *capture.Clip) (string, error) {
	e.setState(sess, StateTranscribing)
	text, err := e.svc.Transcriber.Transcribe(ctx, clip, sess.Lang)
	if aerr := e.alive(ctx, sess); aerr != nil {
		return "", aerr
	}
	if err != nil {
		return "", err
	}
	if text != "" && e.cfg.OnTranscript != nil {
		e.cfg.OnTranscript(sess.ID, "user", text)
	}
	return text, nil
}

// say synthesizes and plays a prompt. Synthesis and playback failures
// are non-fatal; the conversation continues silently.
func (e *Engine) say(ctx context.Context, sess *Session, text string) {
	if text == "" || e.alive(ctx, sess) != nil {
		return
	}
	if e.cfg.OnTranscript != nil {
		e.cfg.OnTranscript(sess.ID, "assistant", text)
	}
	if e.svc.Synthesizer == nil {
		return
	}

	clip, err := e.svc.Synthesizer.Speak(ctx, text, sess.Lang, e.cfg.Voice)
	if err != nil {
		e.logger.Warn("synthesis failed, continuing silently", "error", err)
		return
	}
	if e.alive(ctx, sess) != nil {
		return
	}
	e.play(ctx, clip)
}

// play writes a clip to the sink in device-sized chunks.
func (e *Engine) play(ctx context.Context, clip *capture.Clip) {
	if e.sink == nil || clip == nil || len(clip.PCM) == 0 {
		return
	}

	samples := audioio.BytesToSamples(clip.PCM)
	sinkCfg := e.sink.Config()
	step := sinkCfg.BufferSize()
	if step <= 0 {
		step = len(samples)
	}
	for off := 0; off < len(samples); off += step {
		end := off + step
		if end > len(samples) {
			end = len(samples)
		}
		chunk := audioio.AudioChunk{
			Samples:    samples[off:end],
			SampleRate: clip.SampleRate,
			Channels:   1,
		}
		if err := e.sink.Write(ctx, chunk); err != nil {
			e.logger.Warn("playback failed, continuing silently", "error", err)
			return
		}
	}
	if err := e.sink.Flush(ctx); err != nil {
		e.logger.Warn("playback flush failed", "error", err)
	}
}

// replyTurn speaks a prompt then records and transcribes the answer.
// An empty clip comes back as empty text, not an error.
func (e *Engine) replyTurn(ctx context.Context, sess *Session, prompt string) (string, error) {
	e.say(ctx, sess, prompt)

	clip, err := e.listen(ctx, sess, e.cfg.ConfirmVAD)
	if err != nil {
		return "", err
	}
	e.setState(sess, StateConfirming)
	if clip.Empty() {
		return "", nil
	}
	return e.hear(ctx, sess, clip)
}

// confirmTurn asks a yes/no question. A pending manual override is
// consumed instead of a spoken reply. Silence and unrecognized replies
// re-prompt with a fixed retry message; the retry budget falling to zero
// returns errUnclear, never a guessed "no".
func (e *Engine) confirmTurn(ctx context.Context, sess *Session, prompt string) (bool, error) {
	e.setState(sess, StateConfirming)

	for attempt := 0; attempt < e.cfg.MaxConfirmRetries; attempt++ {
		if v, ok := sess.takeOverride(); ok {
			return v, nil
		}

		p := prompt
		if attempt > 0 {
			p = phrase(sess.Lang, "retry")
		}
		text, err := e.replyTurn(ctx, sess, p)
		if err != nil {
			return false, err
		}
		if v, ok := sess.takeOverride(); ok {
			return v, nil
		}

		switch ClassifyReply(text, sess.Lang) {
		case ReplyYes:
			return true, nil
		case ReplyNo:
			return false, nil
		}
	}
	return false, errUnclear
}

// disambigTurn runs the prompt loop for one unresolved reference.
func (e *Engine) disambigTurn(ctx context.Context, sess *Session, ref *speech.ProductReference) (Outcome, error) {
	e.setState(sess, StateConfirming)

	for attempt := 0; attempt < e.cfg.MaxConfirmRetries; attempt++ {
		prompt := e.disambig.Prompt(ref, sess.Lang)
		if attempt > 0 {
			prompt = phrase(sess.Lang, "retry_pick") + " " + prompt
		}
		text, err := e.replyTurn(ctx, sess, prompt)
		if err != nil {
			return OutcomeUnknown, err
		}
		if out := e.disambig.ResolveReply(ref, text, sess.Lang); out != OutcomeUnknown {
			return out, nil
		}
	}
	return OutcomeUnknown, errUnclear
}

// execute applies the resolved references. Matched references mutate
// stock now; references marked for creation are queued for their price
// question. A write failure re-enters Confirming for a retry decision.
func (e *Engine) execute(ctx context.Context, sess *Session, cmd *speech.ParsedCommand) error {
	e.setState(sess, StateExecuting)

	var narration []string
	for i := range cmd.Items {
		ref := &cmd.Items[i]

		if ref.MatchedID == "" {
			if cmd.Action == speech.ActionAdd {
				sess.Queue.Enqueue(PendingItem{
					Name:     ref.SpokenName,
					Quantity: ref.Quantity,
					Unit:     ref.Unit,
					Price:    ref.UnitPrice,
					Action:   cmd.Action,
				})
			}
			continue
		}

		delta := ref.Quantity
		if cmd.Action == speech.ActionRemove {
			delta = -delta
		}
		updated, err := e.writeWithRetry(ctx, sess, func() (inventory.Product, error) {
			return e.repo.AdjustQuantity(ctx, ref.MatchedID, delta)
		})
		if errors.Is(err, errAborted) {
			e.say(ctx, sess, phrase(sess.Lang, "cancelled"))
			return nil
		}
		if err != nil {
			return err
		}

		if ref.UnitPrice != nil {
			if _, err := e.repo.SetPrice(ctx, ref.MatchedID, *ref.UnitPrice); err != nil {
				e.logger.Warn("price update failed", "error", err, "product", ref.MatchedID)
			}
		}
		narration = append(narration,
			phrasef(sess.Lang, "stock_now", updated.Name, updated.Quantity, updated.Unit))
	}

	if len(narration) > 0 {
		e.setState(sess, StateSpeaking)
		e.say(ctx, sess, strings.Join(narration, " "))
	}
	return nil
}

// writeWithRetry performs one repository write. On failure the machine
// returns to Confirming and asks whether to try again; declining aborts
// with errAborted.
func (e *Engine) writeWithRetry(ctx context.Context, sess *Session, write func() (inventory.Product, error)) (inventory.Product, error) {
	for attempt := 0; attempt < e.cfg.MaxConfirmRetries; attempt++ {
		p, err := write()
		if aerr := e.alive(ctx, sess); aerr != nil {
			return inventory.Product{}, aerr
		}
		if err == nil {
			return p, nil
		}
		e.logger.Error("inventory write failed", "session", sess.ID, "error", err)

		retry, cerr := e.confirmTurn(ctx, sess, phrase(sess.Lang, "write_failed"))
		if errors.Is(cerr, errUnclear) {
			return inventory.Product{}, errAborted
		}
		if cerr != nil {
			return inventory.Product{}, cerr
		}
		if !retry {
			return inventory.Product{}, errAborted
		}
		e.setState(sess, StateExecuting)
	}
	return inventory.Product{}, errAborted
}

// drainQueue asks the price question for every pending item in arrival
// order and creates each product. Silence or an unparseable answer
// creates the item with no price; the queue always drains.
func (e *Engine) drainQueue(ctx context.Context, sess *Session) error {
	for !sess.Queue.IsEmpty() {
		item, _ := sess.Queue.PeekFront()

		price := item.Price
		if price == nil {
			var err error
			price, err = e.priceTurn(ctx, sess, item)
			if err != nil {
				return err
			}
		}

		created, err := e.writeWithRetry(ctx, sess, func() (inventory.Product, error) {
			return e.createProduct(ctx, item, price)
		})
		if errors.Is(err, errAborted) {
			sess.Queue.DequeueFront()
			e.say(ctx, sess, phrasef(sess.Lang, "skipped", item.Name))
			continue
		}
		if err != nil {
			return err
		}

		sess.Queue.DequeueFront()
		e.setState(sess, StateSpeaking)
		e.say(ctx, sess, phrasef(sess.Lang, "created", created.Name))
	}
	return nil
}

// priceTurn asks one price question. Transport failures re-enter
// AwaitingPrice and retry the same item so the rest of the queue is not
// lost; the retry budget falling to zero falls back to a nil price.
func (e *Engine) priceTurn(ctx context.Context, sess *Session, item PendingItem) (*float64, error) {
	for attempt := 0; attempt < e.cfg.MaxConfirmRetries; attempt++ {
		e.setState(sess, StateAwaitingPrice)
		e.say(ctx, sess, phrasef(sess.Lang, "price_question", item.Name))

		clip, err := e.listen(ctx, sess, e.cfg.PriceVAD)
		if err != nil {
			return nil, err
		}
		e.setState(sess, StateAwaitingPrice)
		if clip.Empty() {
			return nil, nil
		}

		text, err := e.hear(ctx, sess, clip)
		if err != nil {
			if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			e.logger.Warn("price transcription failed, retrying item",
				"session", sess.ID, "item", item.Name, "error", err)
			continue
		}
		return ParsePrice(text), nil
	}
	return nil, nil
}

// createProduct creates a queued item. An exact-name duplicate folds
// into a stock adjustment instead of failing the queue.
func (e *Engine) createProduct(ctx context.Context, item PendingItem, price *float64) (inventory.Product, error) {
	p, err := e.repo.Create(ctx, inventory.Product{
		Name:      item.Name,
		Quantity:  item.Quantity,
		Unit:      item.Unit,
		UnitPrice: price,
	})
	if !errors.Is(err, inventory.ErrDuplicate) {
		return p, err
	}

	existing, ferr := e.repo.FindByName(ctx, item.Name)
	if ferr != nil || len(existing) == 0 {
		return inventory.Product{}, err
	}
	return e.repo.AdjustQuantity(ctx, existing[0].ID, item.Quantity)
}

// runCheck narrates the stock of each referenced product.
func (e *Engine) runCheck(ctx context.Context, sess *Session, cmd *speech.ParsedCommand) error {
	e.setState(sess, StateExecuting)
	if err := e.disambig.Lookup(ctx, cmd); err != nil {
		return e.fail(ctx, sess, err)
	}
	if aerr := e.alive(ctx, sess); aerr != nil {
		return aerr
	}

	var lines []string
	for i := range cmd.Items {
		ref := &cmd.Items[i]
		switch {
		case ref.MatchedID != "":
			lines = append(lines,
				phrasef(sess.Lang, "stock_now", ref.MatchedName, *ref.CurrentQuantity, unitOf(ref.Candidates, ref.Unit)))
		case len(ref.Candidates) > 0:
			// Read-only, so the best candidate is narrated directly.
			c := ref.Candidates[0]
			lines = append(lines, phrasef(sess.Lang, "stock_now", c.Name, c.Quantity, c.Unit))
		default:
			lines = append(lines, phrasef(sess.Lang, "not_found", ref.SpokenName))
		}
	}

	e.setState(sess, StateSpeaking)
	e.say(ctx, sess, strings.Join(lines, " "))
	return nil
}

// runList narrates the inventory.
func (e *Engine) runList(ctx context.Context, sess *Session) error {
	e.setState(sess, StateExecuting)
	products, err := e.repo.List(ctx)
	if aerr := e.alive(ctx, sess); aerr != nil {
		return aerr
	}
	if err != nil {
		return e.fail(ctx, sess, err)
	}

	e.setState(sess, StateSpeaking)
	if len(products) == 0 {
		e.say(ctx, sess, phrase(sess.Lang, "empty_inventory"))
		return nil
	}

	const maxSpoken = 12
	var lines []string
	for i, p := range products {
		if i == maxSpoken {
			lines = append(lines, phrasef(sess.Lang, "and_more", len(products)-maxSpoken))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %.4g %s.", p.Name, p.Quantity, p.Unit))
	}
	e.say(ctx, sess, strings.Join(lines, " "))
	return nil
}

// fail surfaces a service failure to the user and returns the error.
func (e *Engine) fail(ctx context.Context, sess *Session, err error) error {
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	e.logger.Error("session failed", "session", sess.ID, "error", err)
	e.say(ctx, sess, phrase(sess.Lang, "service_trouble"))
	return err
}

// stripMatches removes the resolved match from the given references so
// they read as new-product creations. It reports whether any of them
// was matched.
func stripMatches(cmd *speech.ParsedCommand, idx []int) bool {
	any := false
	for _, i := range idx {
		if cmd.Items[i].MatchedID != "" {
			any = true
			markForCreation(&cmd.Items[i])
		}
	}
	return any
}

func unitOf(candidates []inventory.Product, fallback string) string {
	if len(candidates) > 0 && candidates[0].Unit != "" {
		return candidates[0].Unit
	}
	return fallback
}

func buildConfirmPrompt(lang string, cmd *speech.ParsedCommand, idx []int) string {
	parts := make([]string, 0, len(idx))
	for _, i := range idx {
		it := cmd.Items[i]
		if it.Unit != "" {
			parts = append(parts, fmt.Sprintf("%.4g %s %s", it.Quantity, it.Unit, it.SpokenName))
		} else {
			parts = append(parts, fmt.Sprintf("%.4g %s", it.Quantity, it.SpokenName))
		}
	}
	list := strings.Join(parts, ", ")
	if strings.HasPrefix(strings.ToLower(lang), "fr") {
		if cmd.Action == speech.ActionRemove {
			return fmt.Sprintf("Je retire %s, c'est bien ça ?", list)
		}
		return fmt.Sprintf("J'ajoute %s, c'est bien ça ?", list)
	}
	if cmd.Action == speech.ActionRemove {
		return fmt.Sprintf("Remove %s, correct?", list)
	}
	return fmt.Sprintf("Add %s, correct?", list)
}
