package sos

import (
	"fmt"

	"github.com/zulandar/lifeline/internal/dispatch"
	"github.com/zulandar/lifeline/internal/models"
)

// transitions lists, for each status, the statuses it may move to.
var transitions = map[models.EventStatus][]models.EventStatus{
	models.StatusActive:        {models.StatusSent, models.StatusPartiallySent, models.StatusFailed, models.StatusResolved},
	models.StatusSent:          {models.StatusResolved},
	models.StatusPartiallySent: {models.StatusResolved},
	models.StatusFailed:        {models.StatusResolved},
	models.StatusResolved:      nil,
}

// Transition validates a status change. It is defined for every pair of
// statuses and returns ErrIllegalTransition for any change not listed
// above, including changes to or from unknown statuses.
func Transition(from, to models.EventStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// AggregateStatus derives the post-dispatch status from the SMS tally.
// Skipped contacts do not count either way.
func AggregateStatus(res *dispatch.BatchResult) models.EventStatus {
	switch {
	case res == nil || res.Successful == 0:
		return models.StatusFailed
	case res.Failed == 0:
		return models.StatusSent
	default:
		return models.StatusPartiallySent
	}
}
