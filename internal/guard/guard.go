// Package guard enumerates the user actions currently legal for an item by
// probing the transition function with representative events. The UI and
// batch layers use it to list actions without attempting speculative
// transitions; by construction it cannot disagree with the machine.
package guard

import (
	"time"

	"citetrack/internal/item"
	"citetrack/internal/machine"
)

// probeKey is a placeholder external key used only to exercise the
// transition guards. It never reaches storage.
const probeKey = "guard-probe"

func probeEvent(action machine.Action, it item.URLItem) machine.Event {
	switch action {
	case machine.ActionStart:
		return machine.Start{}
	case machine.ActionSelectIdentifier:
		unreviewed := it.UnreviewedCandidates()
		if len(unreviewed) == 0 {
			// No candidate to select; probe with an id the machine rejects.
			return machine.IdentifierSucceeded{CandidateID: 0, Key: probeKey}
		}
		return machine.IdentifierSucceeded{CandidateID: unreviewed[0].ID, Key: probeKey, Complete: true}
	case machine.ActionLLMExtract:
		return machine.LLMSucceeded{Key: probeKey}
	case machine.ActionLinkExisting:
		return machine.LinkExisting{Key: probeKey}
	case machine.ActionUnlink:
		return machine.Unlink{}
	case machine.ActionIgnore:
		return machine.Ignore{}
	case machine.ActionUnignore:
		return machine.Unignore{}
	case machine.ActionArchive:
		return machine.Archive{}
	case machine.ActionUnarchive:
		return machine.Unarchive{}
	case machine.ActionReset:
		return machine.Reset{}
	default:
		return nil
	}
}

// Allows reports whether the given action would currently be accepted.
func Allows(it item.URLItem, action machine.Action) bool {
	ev := probeEvent(action, it)
	if ev == nil {
		return false
	}
	_, _, rejection := machine.Transition(it, ev, item.TriggerUser, time.Now())
	return rejection == nil
}

// AvailableActions returns the legal user actions for the item in a stable
// order.
func AvailableActions(it item.URLItem) []machine.Action {
	var actions []machine.Action
	for _, action := range machine.UserActions() {
		if Allows(it, action) {
			actions = append(actions, action)
		}
	}
	return actions
}
