package saga

// State is a stage of the order-change saga. Every transition between states
// has a dedicated method on the Coordinator so that the full machine is
// visible in one place.
type State string

const (
	StateInit                    State = "INIT"
	StatePlannerRequested        State = "PLANNER_REQUESTED"
	StatePlannerOK               State = "PLANNER_OK"
	StatePlannerFailed           State = "PLANNER_FAILED"
	StateErpRequested            State = "ERP_REQUESTED"
	StateErpOK                   State = "ERP_OK"
	StateErpFailed               State = "ERP_FAILED"
	StatePlannerConfirmRequested State = "PLANNER_CONFIRM_REQUESTED"
	StateConfirmFailed           State = "CONFIRM_FAILED"
	StateCommitted               State = "COMMITTED"
	StateRolledBack              State = "ROLLED_BACK"
	StateAborted                 State = "ABORTED"
)

// IsTerminal reports whether the saga is finished in this state.
func (s State) IsTerminal() bool {
	switch s {
	case StateCommitted, StateRolledBack, StateAborted:
		return true
	default:
		return false
	}
}
