package dialog

import (
	"fmt"
	"strings"
)

// Spoken phrases per language. Unsupported languages fall back to
// English.
var phrases = map[string]map[string]string{
	"en": {
		"heard_nothing":   "I didn't hear anything. Please try again.",
		"cannot_process":  "Sorry, I couldn't understand that command.",
		"service_trouble": "Sorry, I'm having trouble reaching the service. Please try again.",
		"retry":           "Sorry, I didn't catch that. Please answer yes or no.",
		"retry_pick":      "Sorry, I didn't catch that.",
		"giving_up":       "I still didn't understand, so I've cancelled the command.",
		"cancelled":       "Okay, cancelled.",
		"unsure":          "I'm not sure I heard that right.",
		"not_found":       "I don't have %q in the inventory.",
		"write_failed":    "I couldn't save that. Should I try again?",
		"price_question":  "What is the unit price of %s?",
		"created":         "%s has been added to the inventory.",
		"skipped":         "I've skipped %s.",
		"stock_now":       "%s: %.4g %s in stock.",
		"empty_inventory": "The inventory is empty.",
		"and_more":        "And %d more.",
	},
	"fr": {
		"heard_nothing":   "Je n'ai rien entendu. Réessayez.",
		"cannot_process":  "Désolé, je n'ai pas compris cette commande.",
		"service_trouble": "Désolé, je n'arrive pas à joindre le service. Réessayez.",
		"retry":           "Désolé, je n'ai pas compris. Répondez oui ou non.",
		"retry_pick":      "Désolé, je n'ai pas compris.",
		"giving_up":       "Je n'ai toujours pas compris, j'annule la commande.",
		"cancelled":       "D'accord, c'est annulé.",
		"unsure":          "Je ne suis pas sûr d'avoir bien entendu.",
		"not_found":       "Je n'ai pas %q dans l'inventaire.",
		"write_failed":    "Je n'ai pas pu enregistrer. On réessaie ?",
		"price_question":  "Quel est le prix unitaire de %s ?",
		"created":         "%s a été ajouté à l'inventaire.",
		"skipped":         "J'ai passé %s.",
		"stock_now":       "%s : %.4g %s en stock.",
		"empty_inventory": "L'inventaire est vide.",
		"and_more":        "Et %d de plus.",
	},
}

func phrase(lang, key string) string {
	lang = strings.ToLower(strings.SplitN(lang, "-", 2)[0])
	table, ok := phrases[lang]
	if !ok {
		table = phrases["en"]
	}
	if p, ok := table[key]; ok {
		return p
	}
	return phrases["en"][key]
}

func phrasef(lang, key string, args ...any) string {
	return fmt.Sprintf(phrase(lang, key), args...)
}
