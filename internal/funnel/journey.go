package funnel

// Journey is the engine-facing view of one session: its identity, the
// segmentation attributes fixed for the session's lifetime, and the funnel
// stages that recorded at least one event. Journeys are built once from a
// snapshot and read read-only by every computation.
type Journey struct {
	SessionID string
	Device    string
	Source    string
	Stages    []Stage
}

// Reach returns the highest-ordered stage with at least one recorded event,
// or StageNone for a journey with no events. Event order is irrelevant: a
// journey holding a Payment event but no Checkout event still reaches
// Payment. This is the only place the furthest-reached policy lives.
func (j Journey) Reach() Stage {
	furthest := StageNone
	for _, s := range j.Stages {
		if s.Valid() && s > furthest {
			furthest = s
		}
	}
	return furthest
}
