package call

// Call is a deferred error-returning function
type Call func() error

// Perform runs calls in order and stops at the first error
func Perform(calls ...Call) error {
	for _, c := range calls {
		if err := c(); err != nil {
			return err
		}
	}
	return nil
}

// WithArg binds one argument to a call
func WithArg[T any](fn func(T) error, arg T) Call {
	return func() error {
		return fn(arg)
	}
}

// WithArgs binds two arguments to a call
func WithArgs[T1, T2 any](fn func(T1, T2) error, a1 T1, a2 T2) Call {
	return func() error {
		return fn(a1, a2)
	}
}

// If runs fn only when cond holds
func If(cond bool, fn Call) Call {
	if !cond {
		return noop
	}
	return fn
}

func noop() error {
	return nil
}
