package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/lflachs/cocorico-voice/pkg/inventory"
	"github.com/lflachs/cocorico-voice/pkg/speech"
)

// Branch classifies a product reference by candidate cardinality after
// lookup. The branch decides which prompt the engine speaks next.
type Branch int

const (
	// BranchResolved needs no user turn; the reference matched exactly.
	BranchResolved Branch = iota

	// BranchCreate has no candidate; the user is asked to create the
	// product.
	BranchCreate

	// BranchOffer has one fuzzy candidate, offered with a create-new
	// fallback.
	BranchOffer

	// BranchChoose has several candidates; the user picks one or says
	// the new-product keyword.
	BranchChoose
)

// Outcome is the result of reading a disambiguation reply.
type Outcome int

const (
	// OutcomeUnknown means the reply matched nothing; re-prompt, never
	// guess.
	OutcomeUnknown Outcome = iota

	// OutcomeMatched resolved the reference to an inventory entry.
	OutcomeMatched

	// OutcomeNew resolved the reference to a new-product creation under
	// the spoken name.
	OutcomeNew

	// OutcomeAbort drops the whole command.
	OutcomeAbort
)

// Disambiguator resolves a command's product references against the
// inventory. It never mutates inventory and never guesses; unclear
// replies come back as OutcomeUnknown.
type Disambiguator struct {
	repo inventory.Repository
}

// NewDisambiguator creates a disambiguator over the repository.
func NewDisambiguator(repo inventory.Repository) *Disambiguator {
	return &Disambiguator{repo: repo}
}

// Lookup fills every reference's candidate list. A single candidate
// whose name equals the spoken name (after folding) is resolved in
// place; everything else is left for a user turn.
func (d *Disambiguator) Lookup(ctx context.Context, cmd *speech.ParsedCommand) error {
	for i := range cmd.Items {
		ref := &cmd.Items[i]
		candidates, err := d.repo.FindByName(ctx, ref.SpokenName)
		if err != nil {
			return err
		}
		ref.Candidates = candidates

		if len(candidates) == 1 &&
			inventory.Normalize(candidates[0].Name) == inventory.Normalize(ref.SpokenName) {
			resolveTo(ref, candidates[0])
		}
	}
	return nil
}

// BranchFor classifies a looked-up reference.
func (d *Disambiguator) BranchFor(ref *speech.ProductReference) Branch {
	switch {
	case ref.MatchedID != "":
		return BranchResolved
	case len(ref.Candidates) == 0:
		return BranchCreate
	case len(ref.Candidates) == 1:
		return BranchOffer
	default:
		return BranchChoose
	}
}

// Prompt builds the spoken question for a reference's branch.
func (d *Disambiguator) Prompt(ref *speech.ProductReference, lang string) string {
	fr := strings.HasPrefix(strings.ToLower(lang), "fr")
	switch d.BranchFor(ref) {
	case BranchCreate:
		if fr {
			return fmt.Sprintf("Je n'ai pas trouvé %q. Je le crée ?", ref.SpokenName)
		}
		return fmt.Sprintf("I didn't find %q. Should I create it?", ref.SpokenName)
	case BranchOffer:
		if fr {
			return fmt.Sprintf("J'ai trouvé %q. On l'utilise ?", ref.Candidates[0].Name)
		}
		return fmt.Sprintf("I found %q. Use it?", ref.Candidates[0].Name)
	case BranchChoose:
		names := make([]string, len(ref.Candidates))
		for i, c := range ref.Candidates {
			names[i] = c.Name
		}
		if fr {
			return fmt.Sprintf("J'ai trouvé plusieurs produits: %s. Lequel, ou dites nouveau ?",
				strings.Join(names, ", "))
		}
		return fmt.Sprintf("I found several products: %s. Which one, or say new?",
			strings.Join(names, ", "))
	default:
		return ""
	}
}

// ResolveReply applies a transcribed reply to a reference. OutcomeMatched
// and OutcomeNew update the reference in place; OutcomeUnknown means the
// engine should re-prompt.
func (d *Disambiguator) ResolveReply(ref *speech.ProductReference, reply, lang string) Outcome {
	switch d.BranchFor(ref) {
	case BranchCreate:
		switch ClassifyReply(reply, lang) {
		case ReplyYes:
			markForCreation(ref)
			return OutcomeNew
		case ReplyNo:
			return OutcomeAbort
		}
		return OutcomeUnknown

	case BranchOffer:
		switch ClassifyReply(reply, lang) {
		case ReplyYes:
			resolveTo(ref, ref.Candidates[0])
			return OutcomeMatched
		case ReplyNo:
			// Declining the candidate means "not that product", so the
			// spoken name becomes a new product.
			markForCreation(ref)
			return OutcomeNew
		}
		return OutcomeUnknown

	case BranchChoose:
		if IsNewKeyword(reply, lang) {
			markForCreation(ref)
			return OutcomeNew
		}
		if idx, ok := matchCandidate(ref.Candidates, reply); ok {
			resolveTo(ref, ref.Candidates[idx])
			return OutcomeMatched
		}
		return OutcomeUnknown
	}
	return OutcomeUnknown
}

// matchCandidate finds the single candidate whose name contains, or is
// contained in, the normalized reply. A reply matching several
// candidates is treated as no match.
func matchCandidate(candidates []inventory.Product, reply string) (int, bool) {
	want := inventory.Normalize(reply)
	if want == "" {
		return 0, false
	}

	found, foundIdx := 0, -1
	for i, c := range candidates {
		name := inventory.Normalize(c.Name)
		if strings.Contains(name, want) || strings.Contains(want, name) {
			found++
			foundIdx = i
		}
	}
	if found != 1 {
		return 0, false
	}
	return foundIdx, true
}

func resolveTo(ref *speech.ProductReference, p inventory.Product) {
	ref.MatchedID = p.ID
	ref.MatchedName = p.Name
	qty := p.Quantity
	ref.CurrentQuantity = &qty
}

func markForCreation(ref *speech.ProductReference) {
	ref.MatchedID = ""
	ref.MatchedName = ""
	ref.CurrentQuantity = nil
	ref.Candidates = nil
}
