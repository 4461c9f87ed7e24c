package model

// OutcomeKind classifies the result of a cart operation.
type OutcomeKind string

const (
	OutcomeApplied   OutcomeKind = "applied"    // remote reconciled and local cart updated
	OutcomeRejected  OutcomeKind = "rejected"   // validation failure, nothing changed
	OutcomeTransient OutcomeKind = "transient"  // remote failure, optimistic local state kept
	OutcomeFallback  OutcomeKind = "fallback"   // reconciled after recovering from a stale id or pointer
	OutcomeStale     OutcomeKind = "stale"      // remote done, local result superseded by a newer revision
	OutcomeQueued    OutcomeKind = "queued"     // coalesced into the pending slot
	OutcomeLocalOnly OutcomeKind = "local_only" // nothing to reconcile remotely
)

// ResolutionSource names how a remote cart id was obtained.
type ResolutionSource string

const (
	ViaKnown   ResolutionSource = "known"
	ViaPointer ResolutionSource = "pointer"
	ViaLocal   ResolutionSource = "local"
	ViaCreated ResolutionSource = "created"
)

// Outcome is the typed result of every engine operation.
type Outcome struct {
	Kind     OutcomeKind      `json:"kind"`
	CartID   string           `json:"cart_id,omitempty"`
	Revision int64            `json:"revision"`
	Via      ResolutionSource `json:"via,omitempty"`
	Err      error            `json:"-"`
}

// OK reports whether the outcome leaves the cart in a usable state. Only
// validation rejections are failures from the shopper's point of view.
func (o Outcome) OK() bool {
	return o.Kind != OutcomeRejected
}

// Rejected builds a validation outcome.
func Rejected(err error, revision int64) Outcome {
	return Outcome{Kind: OutcomeRejected, Err: err, Revision: revision}
}
