package models

import "time"

// UpcomingThreshold is how far ahead a paid event must be to count as upcoming.
const UpcomingThreshold = 7 * 24 * time.Hour

// DeriveEventStatus computes the lifecycle status of e at now. The result
// depends only on the arguments, so applying it repeatedly is a no-op.
func DeriveEventStatus(e *Event, now time.Time) string {
	switch {
	case e.Date.Before(now):
		if e.CurrentParticipants >= e.MinParticipants {
			return EventStatusCompleted
		}
		return EventStatusCancelled
	case e.CurrentParticipants >= e.MaxParticipants:
		return EventStatusFull
	case e.Fee == 0:
		return EventStatusOpen
	case e.Date.After(now.Add(UpcomingThreshold)):
		return EventStatusUpcoming
	default:
		return EventStatusOngoing
	}
}

// IsSchedulerManaged reports whether the scheduler may still change an event
// stored with the given status.
func IsSchedulerManaged(status string) bool {
	switch status {
	case EventStatusCompleted, EventStatusCancelled, EventStatusClosed:
		return false
	}
	return true
}

// AcceptsBookings reports whether new enrollments may be created for the status
func AcceptsBookings(status string) bool {
	switch status {
	case EventStatusUpcoming, EventStatusOpen, EventStatusOngoing:
		return true
	}
	return false
}
