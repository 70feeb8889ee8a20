package order

import (
	"log"

	"github.com/google/uuid"
)

// GroupRule names the cross-order dependency applied to a group.
type GroupRule string

const (
	// GroupRuleCancelOnFill cancels the remaining members once one member
	// fills completely (one-cancels-the-others).
	GroupRuleCancelOnFill GroupRule = "CANCEL_ON_FILL"
)

// Group is the authoritative membership list for one order group. Members
// reference the group by id only; the manager owns both sides.
type Group struct {
	ID      string
	Rule    GroupRule
	Members []string // correlation ids
}

// CreateGroup registers a new empty group and returns its id. Orders join by
// carrying the id in their creation request.
func (m *Manager) CreateGroup(rule GroupRule) string {
	g := &Group{ID: uuid.NewString(), Rule: rule}
	m.mu.Lock()
	m.groups[g.ID] = g
	m.mu.Unlock()
	return g.ID
}

// GetGroup returns a copy of the group's membership.
func (m *Manager) GetGroup(id string) (Group, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return Group{}, false
	}
	out := Group{ID: g.ID, Rule: g.Rule, Members: make([]string, len(g.Members))}
	copy(out.Members, g.Members)
	return out, true
}

// evaluateGroup runs inside the ingestion step that drove trigger into a
// terminal state, so siblings are marked before any later update to them can
// be processed. Only a full fill arms the cancel-on-fill rule.
func (m *Manager) evaluateGroup(trigger Order) {
	if trigger.GroupID == "" || trigger.Status != StatusFilled {
		return
	}

	m.mu.Lock()
	g, ok := m.groups[trigger.GroupID]
	if !ok || g.Rule != GroupRuleCancelOnFill {
		m.mu.Unlock()
		return
	}
	siblings := make([]*entry, 0, len(g.Members))
	for _, corr := range g.Members {
		if corr == trigger.CorrelationID {
			continue
		}
		if e, ok := m.byCorr[corr]; ok {
			siblings = append(siblings, e)
		}
	}
	cancel := m.onCancel
	m.mu.Unlock()

	for _, e := range siblings {
		e.mu.Lock()
		if e.o.Status.IsTerminal() || e.o.CancelRequested {
			e.mu.Unlock()
			continue
		}
		e.o.CancelRequested = true
		snap := *e.o
		e.mu.Unlock()

		log.Printf("orders(%s): group %s filled by %s, cancelling sibling %s",
			m.account, trigger.GroupID, trigger.CorrelationID, snap.CorrelationID)
		if cancel != nil {
			cancel(snap)
		}
	}
}
