package fixer

import (
	"regexp"
)

// The diagnostic messages below follow the exact wording tsc emits for
// these codes; the fixer rules only need to recover the quoted identifiers
// out of them, never the full sentence.

var moduleNotFoundRe = regexp.MustCompile(`Cannot find module '([^']+)'`)
var nameNotFoundRe = regexp.MustCompile(`Cannot find name '([^']+)'`)
var noExportedMemberRe = regexp.MustCompile(`has no exported member(?: named)? '([^']+)'`)
var didYouMeanRe = regexp.MustCompile(`has no exported member named '([^']+)'\.\s*Did you mean '([^']+)'`)

func moduleFromMessage(msg string) string {
	m := moduleNotFoundRe.FindStringSubmatch(msg)
	if m == nil {
		return ""
	}
	return m[1]
}

func nameFromMessage(msg string) string {
	if m := nameNotFoundRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := noExportedMemberRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	return ""
}

func namesFromDidYouMean(msg string) (wrong, suggestion string) {
	m := didYouMeanRe.FindStringSubmatch(msg)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}
