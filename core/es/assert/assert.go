// Package assert provides composable preconditions for aggregate commands.
package assert

import (
	"errors"
	"fmt"
)

type CondFunc func() bool

// Cond is a named precondition. Check returns nil when the condition holds
// and an error wrapping the condition's failure error otherwise.
type Cond interface {
	String() string
	Eval() bool
	Check() error
}

type cond struct {
	name  string
	err   error
	cond  CondFunc
	check func() error
}

func (c *cond) Check() error   { return c.check() }
func (c *cond) String() string { return c.name }
func (c *cond) Eval() bool     { return c.cond() }

var ErrAssertionFailed = errors.New("assertion failed")

func newCond(name string, err error, condFn CondFunc) *cond {
	if err == nil {
		err = ErrAssertionFailed
	}
	return &cond{name: name, err: err, cond: condFn, check: func() error {
		if !condFn() {
			return fmt.Errorf("%w: %s", err, name)
		}
		return nil
	}}
}

// That builds a lazily evaluated condition failing with err.
func That(name string, err error, fn CondFunc) Cond { return newCond(name, err, fn) }

func True(v bool, name string, err error) Cond  { return newCond(name, err, func() bool { return v }) }
func False(v bool, name string, err error) Cond { return newCond(name, err, func() bool { return !v }) }

func Not(c Cond, err error) Cond {
	return newCond(fmt.Sprintf("[not](%s)", c.String()), err, func() bool { return !c.Eval() })
}

// All holds when every condition holds; Check reports the first failure.
func All(cs ...Cond) Cond {
	all := newCond("all", nil, func() bool {
		for _, c := range cs {
			if !c.Eval() {
				return false
			}
		}
		return true
	})

	all.check = func() error {
		for _, c := range cs {
			if err := c.Check(); err != nil {
				return err
			}
		}
		return nil
	}

	return all
}

// Checked runs thenFunc only if every condition holds.
func Checked(thenFunc func() error, cs ...Cond) error {
	if err := All(cs...).Check(); err != nil {
		return err
	}
	return thenFunc()
}
