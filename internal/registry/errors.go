package registry

import "fmt"

// DuplicateNameError is returned when a create or rename collides with an
// existing filter. Name is the conflicting name so the UI can show it.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("filter name already in use: %q", e.Name)
}

// ValidationError rejects user input before it reaches the store, such as
// an empty filter name or one that slugs to an empty id.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NotFoundError is returned for operations on a filter id that does not exist.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("filter not found: %q", e.ID)
}
