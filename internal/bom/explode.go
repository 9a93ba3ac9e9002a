package bom

import (
	"fmt"
	"math"
)

// Requirements are total quantities needed to build some root quantity.
// Products holds intermediate sub-assemblies, never the roots themselves.
type Requirements struct {
	Parts    map[int64]int64
	Products map[int64]int64
}

func newRequirements() Requirements {
	return Requirements{Parts: make(map[int64]int64), Products: make(map[int64]int64)}
}

// mulAdd returns acc + q*factor for non-negative operands, failing instead
// of wrapping.
func mulAdd(acc, q, factor int64) (int64, error) {
	if q != 0 && factor > math.MaxInt64/q {
		return 0, ErrQuantityOverflow
	}
	p := q * factor
	if acc > math.MaxInt64-p {
		return 0, ErrQuantityOverflow
	}
	return acc + p, nil
}

func (r Requirements) addScaled(o Requirements, factor int64) error {
	for id, q := range o.Parts {
		n, err := mulAdd(r.Parts[id], q, factor)
		if err != nil {
			return fmt.Errorf("part %d: %w", id, err)
		}
		r.Parts[id] = n
	}
	for id, q := range o.Products {
		n, err := mulAdd(r.Products[id], q, factor)
		if err != nil {
			return fmt.Errorf("product %d: %w", id, err)
		}
		r.Products[id] = n
	}
	return nil
}

// Line is one root of an explosion: qty units of a product.
type Line struct {
	ProductID int64
	Amount    int64
}

// Explode computes the parts and sub-assemblies needed for qty units of root.
// Quantities multiply along every path and sum across paths reaching the same
// item. A cycle reachable from root fails with a *CycleError.
func Explode(g *Graph, root int64, qty int64) (Requirements, error) {
	return ExplodeOrder(g, []Line{{ProductID: root, Amount: qty}})
}

// ExplodeOrder explodes several roots and sums the result.
func ExplodeOrder(g *Graph, lines []Line) (Requirements, error) {
	e := &exploder{
		g:       g,
		perUnit: make(map[int64]Requirements),
		onStack: make(map[int64]bool),
	}
	total := newRequirements()
	for _, l := range lines {
		if l.Amount <= 0 {
			return Requirements{}, fmt.Errorf("product %d: %w", l.ProductID, ErrInvalidAmount)
		}
		unit, err := e.unit(l.ProductID)
		if err != nil {
			return Requirements{}, err
		}
		if err := total.addScaled(unit, l.Amount); err != nil {
			return Requirements{}, err
		}
	}
	return total, nil
}

// exploder memoizes the per-unit requirements of each product so shared
// sub-assemblies are walked once.
type exploder struct {
	g       *Graph
	perUnit map[int64]Requirements
	onStack map[int64]bool
	stack   []int64
}

func (e *exploder) unit(product int64) (Requirements, error) {
	if r, ok := e.perUnit[product]; ok {
		return r, nil
	}
	if e.onStack[product] {
		return Requirements{}, &CycleError{Path: closeCycle(e.stack, product)}
	}
	e.onStack[product] = true
	e.stack = append(e.stack, product)

	r := newRequirements()
	for _, p := range e.g.parts[product] {
		n, err := mulAdd(r.Parts[p.PartID], p.Amount, 1)
		if err != nil {
			return Requirements{}, fmt.Errorf("part %d: %w", p.PartID, err)
		}
		r.Parts[p.PartID] = n
	}
	for _, c := range e.g.components[product] {
		sub, err := e.unit(c.ProductID)
		if err != nil {
			return Requirements{}, err
		}
		n, err := mulAdd(r.Products[c.ProductID], c.Amount, 1)
		if err != nil {
			return Requirements{}, fmt.Errorf("product %d: %w", c.ProductID, err)
		}
		r.Products[c.ProductID] = n
		if err := r.addScaled(sub, c.Amount); err != nil {
			return Requirements{}, err
		}
	}

	e.stack = e.stack[:len(e.stack)-1]
	e.onStack[product] = false
	e.perUnit[product] = r
	return r, nil
}
