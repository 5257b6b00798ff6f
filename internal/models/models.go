package models

import "time"

// Record is a persisted history entry addressed by a UUID and by a sequence number.
type Record interface {
	ID() string
	Sequence() int
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Store is the data access contract for a [Record] type. Deletes are soft, and soft-deleted
// records are invisible to every other method.
type Store[T Record] interface {
	Create(record T) error
	Get(id string) (T, error)
	GetBySequence(sequence int) (T, error)
	Update(record T) error
	Delete(id string) error

	// List supports the criteria "name" (string), "status" (string) and "limit" (int).
	List(criteria map[string]any) ([]T, error)
}
