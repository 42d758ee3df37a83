package models

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// MutationEvent is a server-pushed change notification for one record.
type MutationEvent struct {
	Action Action `json:"action"`
	Record Record `json:"record"`
}
