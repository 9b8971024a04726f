package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoWildcard means the route table lacks the "*" entry.
	ErrNoWildcard = errors.New("route table has no '*' entry")
	// ErrDuplicateRoute means a pattern is declared twice.
	ErrDuplicateRoute = errors.New("duplicate route pattern")
	// ErrInvalidChain means a chain cannot be guaranteed to respond.
	ErrInvalidChain = errors.New("invalid handler chain")
	// ErrChainExhausted means a chain finished without writing a response.
	ErrChainExhausted = errors.New("handler chain finished without a response")
)

// Outcome is a guard's decision.
type Outcome int

const (
	// Proceed hands the exchange to the next step.
	Proceed Outcome = iota
	// Halt stops the chain; the guard must have responded.
	Halt
)

// Step is one element of a Chain: a Guard or a View.
type Step interface {
	isStep()
}

// Guard is a middleware step. It either responds and halts, or proceeds.
type Guard func(x *Exchange) Outcome

// View is a terminal step. It always responds.
type View func(x *Exchange)

func (Guard) isStep() {}
func (View) isStep()  {}

// Target is what a route resolves to: a Chain or a ByVerb map.
type Target interface {
	isTarget()
}

// Chain is an ordered list of steps applied to every verb.
// A valid chain is zero or more guards followed by exactly one view.
type Chain []Step

// ByVerb selects a chain by HTTP verb ("get", "POST", ...).
type ByVerb map[string]Chain

func (Chain) isTarget()  {}
func (ByVerb) isTarget() {}

// Route binds a pattern to a target.
type Route struct {
	Pattern string
	Target  Target
}

type compiledRoute struct {
	matcher *Matcher
	all     Chain
	byVerb  map[string]Chain
}

// Dispatcher matches requests against a compiled route table and runs the
// selected chain.
type Dispatcher struct {
	routes   []compiledRoute
	renderer Renderer
}

// NewDispatcher compiles and validates table. Routes keep their declaration
// order except the wildcard, which always goes last.
func NewDispatcher(table []Route, renderer Renderer) (*Dispatcher, error) {
	d := &Dispatcher{renderer: renderer}
	seen := map[string]bool{}
	var wildcard *compiledRoute

	for _, r := range table {
		if seen[r.Pattern] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateRoute, r.Pattern)
		}
		seen[r.Pattern] = true

		m, err := CompilePattern(r.Pattern)
		if err != nil {
			return nil, err
		}
		cr := compiledRoute{matcher: m}
		switch t := r.Target.(type) {
		case Chain:
			if err := validateChain(t); err != nil {
				return nil, fmt.Errorf("route %q: %w", r.Pattern, err)
			}
			cr.all = t
		case ByVerb:
			if len(t) == 0 {
				return nil, fmt.Errorf("route %q: %w: empty verb map", r.Pattern, ErrInvalidChain)
			}
			cr.byVerb = make(map[string]Chain, len(t))
			for verb, chain := range t {
				v := strings.ToUpper(verb)
				if !knownVerb(v) {
					return nil, fmt.Errorf("route %q: unknown verb %q", r.Pattern, verb)
				}
				if _, dup := cr.byVerb[v]; dup {
					return nil, fmt.Errorf("route %q: verb %q declared twice", r.Pattern, v)
				}
				if err := validateChain(chain); err != nil {
					return nil, fmt.Errorf("route %q %s: %w", r.Pattern, v, err)
				}
				cr.byVerb[v] = chain
			}
		default:
			return nil, fmt.Errorf("route %q: %w: no target", r.Pattern, ErrInvalidChain)
		}

		if m.Wildcard() {
			if cr.byVerb != nil {
				return nil, fmt.Errorf("route %q: %w: wildcard must answer every verb", r.Pattern, ErrInvalidChain)
			}
			wildcard = &cr
			continue
		}
		d.routes = append(d.routes, cr)
	}

	if wildcard == nil {
		return nil, ErrNoWildcard
	}
	d.routes = append(d.routes, *wildcard)
	return d, nil
}

func validateChain(c Chain) error {
	if len(c) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidChain)
	}
	for i, s := range c {
		switch t := s.(type) {
		case Guard:
			if t == nil {
				return fmt.Errorf("%w: nil guard at position %d", ErrInvalidChain, i)
			}
			if i == len(c)-1 {
				return fmt.Errorf("%w: chain ends with a guard", ErrInvalidChain)
			}
		case View:
			if t == nil {
				return fmt.Errorf("%w: nil view at position %d", ErrInvalidChain, i)
			}
			if i != len(c)-1 {
				return fmt.Errorf("%w: view at position %d is not last", ErrInvalidChain, i)
			}
		default:
			return fmt.Errorf("%w: nil step at position %d", ErrInvalidChain, i)
		}
	}
	return nil
}

func knownVerb(v string) bool {
	switch v {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodOptions, http.MethodConnect, http.MethodTrace:
		return true
	}
	return false
}

// Routes returns the number of compiled routes, wildcard included.
func (d *Dispatcher) Routes() int { return len(d.routes) }

// Resolve picks the chain for verb and path. A verb map lacking the verb is a
// non-match and the search continues; HEAD falls back to GET.
func (d *Dispatcher) Resolve(verb, path string) (Chain, map[string]string, string) {
	verb = strings.ToUpper(verb)
	for _, r := range d.routes {
		params, ok := r.matcher.Match(path)
		if !ok {
			continue
		}
		if r.all != nil {
			return r.all, params, r.matcher.Pattern()
		}
		if chain, ok := r.byVerb[verb]; ok {
			return chain, params, r.matcher.Pattern()
		}
		if verb == http.MethodHead {
			if chain, ok := r.byVerb[http.MethodGet]; ok {
				return chain, params, r.matcher.Pattern()
			}
		}
	}
	// unreachable: the wildcard always matches
	return nil, nil, ""
}

// Handle serves a request through the route table. It is installed as the
// gin NoRoute handler so that every path not claimed by a fixed endpoint
// reaches it.
func (d *Dispatcher) Handle(c *gin.Context) {
	x := newExchange(c, d.renderer)
	chain, params, pattern := d.Resolve(x.Verb, x.Path)
	x.Params = params
	x.Route = pattern

	outcome := outcomeResponded
	if err := d.run(x, chain); err != nil {
		outcome = outcomeExhausted
		x.Fail(http.StatusInternalServerError, err)
	}
	DispatchTotal.WithLabelValues(pattern, metricVerb(x.Verb), outcome).Inc()
}

// metricVerb keeps the verb label bounded; clients may send any method token.
func metricVerb(verb string) string {
	if knownVerb(verb) {
		return verb
	}
	return "OTHER"
}

// run executes chain in order and stops at the first step that responded.
func (d *Dispatcher) run(x *Exchange, chain Chain) error {
	for i, step := range chain {
		switch s := step.(type) {
		case Guard:
			out := s(x)
			if x.Responded() {
				if out == Proceed {
					logrus.WithFields(logrus.Fields{"route": x.Route, "step": i}).Warn("guard responded but asked to proceed; stopping chain")
				}
				return nil
			}
			if out == Halt {
				return fmt.Errorf("%w: guard %d halted without responding", ErrChainExhausted, i)
			}
		case View:
			s(x)
			if !x.Responded() {
				return fmt.Errorf("%w: view did not respond", ErrChainExhausted)
			}
			return nil
		}
	}
	return ErrChainExhausted
}
