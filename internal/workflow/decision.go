package workflow

import (
	"strings"
	"unicode"
)

// Decision is the classification of a human reply.
type Decision string

const (
	DecisionApprove      Decision = "approve"
	DecisionMoreResearch Decision = "more"
	DecisionRevise       Decision = "revise"
	DecisionNone         Decision = "none"
)

// ClassifyReply maps a reply onto a decision by case-insensitive substring
// match. An empty reply is DecisionNone.
func ClassifyReply(reply string) Decision {
	r := strings.ToLower(strings.TrimSpace(reply))
	switch {
	case r == "":
		return DecisionNone
	case strings.Contains(r, "approve"):
		return DecisionApprove
	case strings.Contains(r, "more"):
		return DecisionMoreResearch
	default:
		return DecisionRevise
	}
}

// Approves reports whether a reply lets a gated phase proceed. Absence of a
// reply counts as approval.
func Approves(reply string) bool {
	d := ClassifyReply(reply)
	return d == DecisionNone || d == DecisionApprove
}

// WantsMoreResearch reports whether a research review asked for another
// round. Absence of a reply means proceed, not loop.
func WantsMoreResearch(reply string) bool {
	return strings.Contains(strings.ToLower(reply), "more")
}

// CriticApproves requires "approve" and the absence of "needs revision";
// a reply containing both is not an approval.
func CriticApproves(review string) bool {
	r := strings.ToLower(review)
	return strings.Contains(r, "approve") && !strings.Contains(r, "needs revision")
}

// IsGeneral reports whether the router's reply carries an affirmative token.
func IsGeneral(reply string) bool {
	tokens := strings.FieldsFunc(strings.ToLower(reply), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, tok := range tokens {
		if tok == "yes" {
			return true
		}
	}
	return false
}
