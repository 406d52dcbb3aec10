package usecase

import "strings"

// Baseline retrieval parameters; per-intent adjustments apply on top.
const (
	defaultChunkCount       = 8
	defaultExpansionQueries = 2
	defaultVectorWeight     = 0.7
	defaultLexicalWeight    = 0.3

	longQueryWords  = 20
	shortQueryWords = 4
)

// PlanRetrieval derives adaptive retrieval parameters from the routed intent
// and the effective query. Pure and total: every intent and query maps to
// valid parameters, ChunkCount is always at least 1 and ExpansionQueries at
// least 0.
func PlanRetrieval(intent Intent, effectiveQuery string) RetrievalParams {
	params := RetrievalParams{
		ChunkCount:       defaultChunkCount,
		ExpansionQueries: defaultExpansionQueries,
		VectorWeight:     defaultVectorWeight,
		LexicalWeight:    defaultLexicalWeight,
	}

	switch intent {
	case IntentComparison:
		// Comparisons need evidence for each side.
		params.ChunkCount = 12
		params.ExpansionQueries = 3
	case IntentSummarization:
		// Broad coverage over precision.
		params.ChunkCount = 16
		params.ExpansionQueries = 3
		params.VectorWeight = 0.8
		params.LexicalWeight = 0.2
	case IntentAnalytical:
		params.ChunkCount = 12
		params.ExpansionQueries = 3
	case IntentFollowUp:
		// The rewritten query is already specific.
		params.ChunkCount = 6
		params.ExpansionQueries = 1
	case IntentChitChat:
		// Routed around retrieval; parameters exist only for totality.
		params.ChunkCount = 1
		params.ExpansionQueries = 0
	}

	words := len(strings.Fields(effectiveQuery))
	switch {
	case words >= longQueryWords:
		// Long questions carry their own keyword diversity.
		if params.ExpansionQueries > 1 {
			params.ExpansionQueries--
		}
		params.LexicalWeight += 0.1
		params.VectorWeight -= 0.1
	case words > 0 && words <= shortQueryWords:
		// Terse queries are often keyword-ish; lean lexical and widen.
		params.ExpansionQueries++
		params.LexicalWeight += 0.1
		params.VectorWeight -= 0.1
	}

	if params.ChunkCount < 1 {
		params.ChunkCount = 1
	}
	if params.ExpansionQueries < 0 {
		params.ExpansionQueries = 0
	}
	return params
}
