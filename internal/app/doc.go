// Package app provides the application service layer.
//
// Orchestrates the pet lifecycle: load-or-accept a snapshot, decay it to now, apply the caretaking
// action, persist, then publish to the broadcast hub. Depends on domain interfaces, not concrete
// implementations. Persistence failures never fail an operation; they are logged and swallowed.
package app
