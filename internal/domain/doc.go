// Package domain defines the core domain types and interfaces.
//
// This package contains concept-oriented files (pet.go, decay.go, store.go, pubsub.go, errors.go)
// with the pet model, its time-driven decay rules and the ports the application layer depends on.
// No I/O here: everything is either a pure function or a contract.
package domain
