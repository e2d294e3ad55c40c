package strata

type action struct {
	steps   int
	pretend bool
}

// ActionConfigurator customizes a single runner operation.
type ActionConfigurator func(a *action)

// WithSteps limits rollback to the N most recent batches.
func WithSteps(steps int) ActionConfigurator {
	return func(a *action) {
		a.steps = steps
	}
}

// WithPretend makes the operation report what it would do without touching
// the database.
func WithPretend() ActionConfigurator {
	return func(a *action) {
		a.pretend = true
	}
}

func makeAction(cfs []ActionConfigurator) *action {
	act := new(action)
	for _, f := range cfs {
		f(act)
	}

	return act
}
