package apiclient

// Result is either a success carrying data or a failure carrying a Fault.
// The zero value is a failure with no fault and should not be used.
type Result[T any] struct {
	value T
	fault *Fault
	ok    bool
}

// Success wraps v as a successful result.
func Success[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Failure wraps err as a failed result. err is converted with AsFault.
func Failure[T any](err error) Result[T] {
	f := AsFault(err)
	if f == nil {
		f = &Fault{Kind: KindInvalidRequest, Detail: "failure without cause"}
	}
	return Result[T]{fault: f}
}

// OK reports whether the result is a success.
func (r Result[T]) OK() bool { return r.ok }

// Get returns the data and a nil error on success. On failure it returns the
// zero value of T and the fault, so partial data is never observable.
func (r Result[T]) Get() (T, error) {
	if !r.ok {
		var zero T
		return zero, r.Fault()
	}
	return r.value, nil
}

// Fault returns the failure description, or nil on success.
func (r Result[T]) Fault() *Fault {
	if r.ok {
		return nil
	}
	if r.fault == nil {
		return &Fault{Kind: KindInvalidRequest, Detail: "empty result"}
	}
	return r.fault
}

// Or returns the data on success and def on failure.
func (r Result[T]) Or(def T) T {
	if !r.ok {
		return def
	}
	return r.value
}
