package record

// Opt holds a value that may be unset. The zero value is unset.
type Opt[T any] struct {
	v  T
	ok bool
}

// Some returns a set Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{v: v, ok: true}
}

// Get returns the value and whether it is set.
func (o Opt[T]) Get() (T, bool) {
	return o.v, o.ok
}

// IsSet reports whether the value is set.
func (o Opt[T]) IsSet() bool {
	return o.ok
}

// Fill sets the value only if it is still unset. It reports whether the
// value was written; a set value is never overwritten.
func (o *Opt[T]) Fill(v T) bool {
	if o.ok {
		return false
	}
	o.v, o.ok = v, true
	return true
}
