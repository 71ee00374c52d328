package scheduler

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// GuardEnv is the environment a guard expression evaluates against. The
// guard decides per cycle whether injection is allowed at all; it is the
// operator's scalpel where the built-in time modifiers are a hammer.
//
// Example guards:
//
//	hour >= 9 && hour < 17 && !weekend
//	pattern != "burst" || elapsed > 300
type GuardEnv struct {
	// Hour is the local wall-clock hour [0,24).
	Hour int `expr:"hour"`
	// Minute is the local wall-clock minute [0,60).
	Minute int `expr:"minute"`
	// Weekday is the English day name ("Monday" ... "Sunday").
	Weekday string `expr:"weekday"`
	// Weekend is true on Saturday and Sunday.
	Weekend bool `expr:"weekend"`
	// Elapsed is seconds since generation start.
	Elapsed float64 `expr:"elapsed"`
	// Pattern is the wire name of the pattern chosen for this cycle.
	Pattern string `expr:"pattern"`
}

// ValidateGuard checks that a guard expression compiles. An empty
// expression is valid and means no guard.
func ValidateGuard(expression string) error {
	_, err := compileGuard(expression)
	return err
}

// guard is a compiled cycle guard. A nil guard allows everything.
type guard struct {
	expression string
	program    *vm.Program
}

// compileGuard compiles a guard expression. An empty expression clears
// the guard. Compile errors reject the expression so the previous guard
// stays in force.
func compileGuard(expression string) (*guard, error) {
	if expression == "" {
		return nil, nil
	}
	program, err := expr.Compile(expression, expr.Env(GuardEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid guard expression %q: %w", expression, err)
	}
	return &guard{expression: expression, program: program}, nil
}

// allows evaluates the guard for one cycle. Evaluation errors fail open:
// a guard must never be able to wedge the scheduler, so a broken guard
// permits the cycle and the caller logs it.
func (g *guard) allows(now time.Time, elapsed time.Duration, p Pattern) (bool, error) {
	if g == nil || g.program == nil {
		return true, nil
	}

	wd := now.Weekday()
	env := GuardEnv{
		Hour:    now.Hour(),
		Minute:  now.Minute(),
		Weekday: wd.String(),
		Weekend: wd == time.Saturday || wd == time.Sunday,
		Elapsed: elapsed.Seconds(),
		Pattern: string(p),
	}

	out, err := expr.Run(g.program, env)
	if err != nil {
		return true, fmt.Errorf("guard %q: %w", g.expression, err)
	}
	allowed, ok := out.(bool)
	if !ok {
		return true, fmt.Errorf("guard %q evaluated to %T, want bool", g.expression, out)
	}
	return allowed, nil
}
