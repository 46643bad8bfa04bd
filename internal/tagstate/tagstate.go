// Package tagstate holds the pure decision logic that moves a document
// through a pipeline stage's tag states. It never talks to the document
// store: callers apply the returned deltas through the store client.
package tagstate

// Stage describes the tag roles for one pipeline stage. A zero tag ID means
// the role is not configured. Pre and Post are required.
type Stage struct {
	Pre        int
	Post       int
	Processing int
	Error      int
}

// Outcome is the result of processing a document through a stage.
type Outcome int

const (
	// OutcomeSuccess means the stage produced a usable payload.
	OutcomeSuccess Outcome = iota

	// OutcomeEmpty means the stage produced no content at all. It is
	// treated as a failure so the document drains instead of requeueing
	// forever.
	OutcomeEmpty

	// OutcomeFailure means the stage exhausted all recovery paths.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Delta is a set of tag mutations. It only ever names the stage's own tags
// plus explicit extras, so tags unrelated to the pipeline are preserved
// verbatim.
type Delta struct {
	Add    []int
	Remove []int
}

// Empty reports whether the delta mutates nothing.
func (d Delta) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0
}

// Decision is the pre-flight verdict for a document about to enter a stage.
type Decision int

const (
	// Proceed means the document is eligible for processing.
	Proceed Decision = iota

	// SkipStale means the document already carries the stage's post tag;
	// the accompanying delta removes the stale pre/processing tags and no
	// work runs.
	SkipStale

	// SkipError means the document carries the error tag; the delta drains
	// the queue tags and no work runs.
	SkipError
)

// Evaluate inspects a document's current tags before any work happens and
// applies the repair rules: error tags short-circuit the stage, and a
// pre+post combination left behind by a partial failure is repaired without
// re-running the transformation.
func Evaluate(current []int, stage Stage) (Decision, Delta) {
	tags := toSet(current)

	if stage.Error != 0 && tags[stage.Error] {
		return SkipError, Delta{Remove: presentOnly(tags, stage.Pre, stage.Processing)}
	}

	if tags[stage.Post] {
		return SkipStale, Delta{Remove: presentOnly(tags, stage.Pre, stage.Processing)}
	}

	return Proceed, Delta{}
}

// Claim returns the delta that marks the document in-progress. The claim is
// best-effort: callers proceed with processing even when applying it fails.
func Claim(stage Stage) Delta {
	if stage.Processing == 0 {
		return Delta{}
	}
	return Delta{Add: []int{stage.Processing}}
}

// Transition computes the tag delta for a completed run. Extras are
// stage-specific enrichment tags added alongside the post tag on success.
// A zero post tag means the stage has no completion marker; the queue and
// processing tags are still drained.
func Transition(current []int, stage Stage, outcome Outcome, extra []int) Delta {
	tags := toSet(current)

	switch outcome {
	case OutcomeSuccess:
		add := []int{}
		if stage.Post != 0 && !tags[stage.Post] {
			add = append(add, stage.Post)
		}
		for _, id := range extra {
			if id != 0 && !tags[id] {
				add = append(add, id)
				tags[id] = true
			}
		}
		return Delta{
			Add:    add,
			Remove: presentOnly(tags, stage.Pre, stage.Processing),
		}

	default: // OutcomeEmpty and OutcomeFailure drain identically
		var add []int
		if stage.Error != 0 && !tags[stage.Error] {
			add = []int{stage.Error}
		}
		return Delta{
			Add:    add,
			Remove: presentOnly(tags, stage.Pre, stage.Processing),
		}
	}
}

// Requeue computes the delta that sends a document back to another stage's
// queue: the current stage's tags are dropped and requeueTag is re-added.
// Classification uses this when a document arrives with no OCR content.
func Requeue(current []int, stage Stage, requeueTag int) Delta {
	tags := toSet(current)

	var add []int
	if requeueTag != 0 && !tags[requeueTag] {
		add = []int{requeueTag}
	}
	return Delta{
		Add:    add,
		Remove: presentOnly(tags, stage.Pre, stage.Post, stage.Processing),
	}
}

func toSet(tags []int) map[int]bool {
	set := make(map[int]bool, len(tags))
	for _, id := range tags {
		set[id] = true
	}
	return set
}

// presentOnly returns the subset of candidate tags actually present, keeping
// deltas idempotent: removing an absent tag never appears in a delta.
func presentOnly(tags map[int]bool, candidates ...int) []int {
	var out []int
	for _, id := range candidates {
		if id != 0 && tags[id] {
			out = append(out, id)
		}
	}
	return out
}
