// Package access decides who may manage awards runs. The check is a pure
// predicate over the actor's role set and the persisted settings; it is
// evaluated fresh on every management action because role membership can
// change between actions.
package access

// Actor is the chat-platform identity attached to an incoming action.
type Actor struct {
	ID      string
	RoleIDs []string
	// Admin is the platform-administrator bit resolved by the adapter.
	Admin bool
}

// CanManage reports whether the actor may perform management actions. An
// empty allowed set means administrators only.
func CanManage(actor Actor, allowedRoleIDs []string) bool {
	if actor.Admin {
		return true
	}
	if len(allowedRoleIDs) == 0 {
		return false
	}
	allowed := make(map[string]struct{}, len(allowedRoleIDs))
	for _, id := range allowedRoleIDs {
		allowed[id] = struct{}{}
	}
	for _, id := range actor.RoleIDs {
		if _, ok := allowed[id]; ok {
			return true
		}
	}
	return false
}
