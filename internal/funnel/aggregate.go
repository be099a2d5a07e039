package funnel

// StageCounts holds cumulative session counts in stage order: counts[i] is
// the number of sessions whose reach is at or beyond rank i+1.
type StageCounts [NumStages]int64

// Aggregate computes cumulative stage counts over a journey snapshot. A
// session reaching rank r increments every count from stage 1 through r,
// which makes the resulting counts non-increasing by construction. Pure:
// the input is never modified and repeated runs over the same snapshot
// return identical counts.
func Aggregate(journeys []Journey) StageCounts {
	var counts StageCounts
	for _, j := range journeys {
		reach := j.Reach().Rank()
		for i := 0; i < reach; i++ {
			counts[i]++
		}
	}
	return counts
}
