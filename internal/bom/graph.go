// Package bom explodes product structures into flat part requirements and
// compares them against stock.
package bom

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrCycleDetected is returned when a product is its own descendant.
var ErrCycleDetected = errors.New("bom cycle detected")

// ErrInvalidAmount is returned for non-positive edge multipliers.
var ErrInvalidAmount = errors.New("amount must be greater than zero")

// ErrQuantityOverflow is returned when a required quantity does not fit in
// an int64.
var ErrQuantityOverflow = errors.New("required quantity is too large")

// CycleError names the products forming a cycle, first and last equal.
type CycleError struct {
	Path []int64
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Path))
	for i, id := range e.Path {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s: %s", ErrCycleDetected, strings.Join(ids, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// PartEdge consumes Amount of a base part per unit of the owning product.
type PartEdge struct {
	PartID int64
	Amount int64
}

// ComponentEdge consumes Amount of a sub-assembly per unit of the owning product.
type ComponentEdge struct {
	ProductID int64
	Amount    int64
}

// Graph holds product structures keyed by product id.
type Graph struct {
	parts      map[int64][]PartEdge
	components map[int64][]ComponentEdge
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		parts:      make(map[int64][]PartEdge),
		components: make(map[int64][]ComponentEdge),
	}
}

// AddPart records that one unit of product consumes amount of part.
func (g *Graph) AddPart(product, part, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("product %d part %d: %w", product, part, ErrInvalidAmount)
	}
	g.parts[product] = append(g.parts[product], PartEdge{PartID: part, Amount: amount})
	return nil
}

// AddComponent records that one unit of product consumes amount of component.
// The edge is stored even if it closes a cycle; Explode and DetectCycle
// report it. Use WouldCreateCycle to reject such edges up front.
func (g *Graph) AddComponent(product, component, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("product %d component %d: %w", product, component, ErrInvalidAmount)
	}
	g.components[product] = append(g.components[product], ComponentEdge{ProductID: component, Amount: amount})
	return nil
}

// Parts returns the direct part edges of product.
func (g *Graph) Parts(product int64) []PartEdge { return g.parts[product] }

// Components returns the direct component edges of product.
func (g *Graph) Components(product int64) []ComponentEdge { return g.components[product] }

// Products lists every product that owns at least one edge, sorted.
func (g *Graph) Products() []int64 {
	seen := make(map[int64]bool)
	for id := range g.parts {
		seen[id] = true
	}
	for id := range g.components {
		seen[id] = true
	}
	out := make([]int64, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DetectCycle walks every product and returns a *CycleError for the first
// cycle found, or nil.
func DetectCycle(g *Graph) error {
	visited := make(map[int64]bool)
	onStack := make(map[int64]bool)
	for _, id := range g.Products() {
		if visited[id] {
			continue
		}
		if path := g.findCycle(id, visited, onStack, nil); path != nil {
			return &CycleError{Path: path}
		}
	}
	return nil
}

func (g *Graph) findCycle(current int64, visited, onStack map[int64]bool, path []int64) []int64 {
	visited[current] = true
	onStack[current] = true
	path = append(path, current)
	for _, c := range g.components[current] {
		if onStack[c.ProductID] {
			return closeCycle(path, c.ProductID)
		}
		if !visited[c.ProductID] {
			if cycle := g.findCycle(c.ProductID, visited, onStack, path); cycle != nil {
				return cycle
			}
		}
	}
	onStack[current] = false
	return nil
}

func closeCycle(path []int64, back int64) []int64 {
	for i, id := range path {
		if id == back {
			cycle := append([]int64{}, path[i:]...)
			return append(cycle, back)
		}
	}
	return []int64{back, back}
}

// WouldCreateCycle reports whether adding parent -> child would make parent
// its own descendant. It returns a *CycleError describing the would-be cycle.
func WouldCreateCycle(g *Graph, parent, child int64) error {
	if parent == child {
		return &CycleError{Path: []int64{parent, parent}}
	}
	// parent -> child closes a cycle iff child already reaches parent.
	path := g.pathTo(child, parent, make(map[int64]bool))
	if path == nil {
		return nil
	}
	return &CycleError{Path: append([]int64{parent}, path...)}
}

func (g *Graph) pathTo(from, target int64, seen map[int64]bool) []int64 {
	if from == target {
		return []int64{target}
	}
	seen[from] = true
	for _, c := range g.components[from] {
		if seen[c.ProductID] {
			continue
		}
		if rest := g.pathTo(c.ProductID, target, seen); rest != nil {
			return append([]int64{from}, rest...)
		}
	}
	return nil
}
