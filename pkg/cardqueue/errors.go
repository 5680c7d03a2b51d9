package cardqueue

import "errors"

// Error classification.
//
// Implementations MAY wrap these with additional context via
// fmt.Errorf("...: %w", err). Callers MUST classify using errors.Is.
// Programming-invariant violations (an empty-at-detach WCQ, an unknown
// filter mode, popping a node from the wrong list) are not represented
// here at all - those go through internal/invariant and abort the
// process, matching a VM-fatal assert with no recovery path.
var (
	// errWrongEntryPoint is returned by one of the nine named
	// EntryPoint* functions when called against a queue built for a
	// different {storage,filter} combination than the symbol's name
	// claims.
	errWrongEntryPoint = errors.New("cardqueue: entry point does not match queue's storage/filter combination")
)
