package core

// Hooks observe what a fragment does to its record.
//
// Any hook may be nil.  Hooks are called synchronously on the
// Engine's goroutine, in the order the operations happen, and always
// after the record reflects the operation.  A hook shouldn't block
// since nothing else can run on that Engine while it does.
type Hooks struct {
	// Get is called after a field is read.
	Get func(field string, value interface{})

	// Set is called after a field is assigned.  Prev is the value
	// just before this assignment.
	Set func(field string, value, prev interface{})

	// Delete is called after a field is removed.  Prev is the value
	// it had.
	Delete func(field string, prev interface{})
}

func (h *Hooks) get(field string, value interface{}) {
	if h != nil && h.Get != nil {
		h.Get(field, value)
	}
}

func (h *Hooks) set(field string, value, prev interface{}) {
	if h != nil && h.Set != nil {
		h.Set(field, value, prev)
	}
}

func (h *Hooks) delete(field string, prev interface{}) {
	if h != nil && h.Delete != nil {
		h.Delete(field, prev)
	}
}
