// Package domain holds the lead status model and the transition licensing
// rules that separate engine-driven writes from agent-driven edits.
package domain

// LeadStatus is the closed set of pipeline statuses a lead can carry.
type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusAssigned    LeadStatus = "assigned"
	LeadStatusNoAnswer    LeadStatus = "no_answer"
	LeadStatusFollowUp    LeadStatus = "follow_up"
	LeadStatusBooked      LeadStatus = "booked"
	LeadStatusDone        LeadStatus = "done"
	LeadStatusMissedRS    LeadStatus = "missed/RS"
	LeadStatusUnqualified LeadStatus = "unqualified"
	LeadStatusGiveUp      LeadStatus = "give_up"
	LeadStatusBlacklisted LeadStatus = "blacklisted"
)

// Valid reports whether s is a member of the closed status set.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusAssigned, LeadStatusNoAnswer, LeadStatusFollowUp,
		LeadStatusBooked, LeadStatusDone, LeadStatusMissedRS, LeadStatusUnqualified,
		LeadStatusGiveUp, LeadStatusBlacklisted:
		return true
	}
	return false
}

// engineWritable is the closed set of values the reconciliation engine is
// licensed to write. Agents can move leads along their own pipelines; the
// engine never writes outside this set.
var engineWritable = map[LeadStatus]bool{
	LeadStatusNew:      true,
	LeadStatusAssigned: true,
	LeadStatusFollowUp: true,
	LeadStatusDone:     true,
	LeadStatusMissedRS: true,
}

// EngineCanSet reports whether the engine is licensed to write the status.
func EngineCanSet(s LeadStatus) bool {
	return engineWritable[s]
}
