// Handler wiring.
package handlers

// Handlers groups the HTTP endpoints for reminders, dialogs, and user
// preferences. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	reminders ReminderService
	dialogs   DialogManager
	users     UserService
}

// New constructs a Handlers instance bound to the given services.
func New(reminders ReminderService, dialogs DialogManager, users UserService) *Handlers {
	return &Handlers{reminders: reminders, dialogs: dialogs, users: users}
}
