package controller

// State is a step of the listing crawl.
type State int

// Crawl states in the order a run normally visits them.
const (
	StateLoadingListing State = iota
	StateCollectingLinks
	StateDispatching
	StateCheckingTermination
	StatePaginating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateLoadingListing:
		return "loading_listing"
	case StateCollectingLinks:
		return "collecting_links"
	case StateDispatching:
		return "dispatching"
	case StateCheckingTermination:
		return "checking_termination"
	case StatePaginating:
		return "paginating"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Stop reasons reported in CrawlSummary.StopReason.
const (
	StopNoItems   = "no_items"
	StopCutoff    = "cutoff"
	StopExhausted = "exhausted"
	StopCanceled  = "canceled"
	StopFatal     = "fatal"
)
