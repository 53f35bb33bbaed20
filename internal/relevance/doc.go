// Package relevance decides whether news items matter to an organization.
//
// Each canonical item goes through two stages against an analysis Backend.
// Stage 1 is a cheap screen on the title and a short excerpt; only items that
// reach the threshold are sent to stage 2, which sees the full content and
// the complete profile. Stage 1 failures are fail-closed (the item is
// rejected), stage 2 failures are surfaced as AnalysisFailed so they can be
// reviewed by hand.
package relevance
