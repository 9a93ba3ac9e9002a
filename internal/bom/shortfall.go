package bom

import "sort"

// Stock is the on-hand quantity per part and per product, already summed
// across locations. Missing entries count as zero.
type Stock struct {
	Parts    map[int64]int64
	Products map[int64]int64
}

// Shortfall compares need against stock for one item.
type Shortfall struct {
	ID     int64 `json:"id"`
	Needed int64 `json:"needed"`
	OnHand int64 `json:"on_hand"`
	Short  int64 `json:"short"`
}

// Report lists shortfalls for parts and intermediate products, sorted by id.
type Report struct {
	Parts    []Shortfall `json:"parts"`
	Products []Shortfall `json:"products"`
}

// Shortfalls reports max(needed - on hand, 0) for every required item.
func Shortfalls(req Requirements, stock Stock) Report {
	return Report{
		Parts:    compare(req.Parts, stock.Parts),
		Products: compare(req.Products, stock.Products),
	}
}

func compare(needed, onHand map[int64]int64) []Shortfall {
	out := make([]Shortfall, 0, len(needed))
	for id, n := range needed {
		have := onHand[id]
		short := n - have
		if short < 0 {
			short = 0
		}
		out = append(out, Shortfall{ID: id, Needed: n, OnHand: have, Short: short})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Short reports whether any line in the report is short.
func (r Report) Short() bool {
	for _, s := range r.Parts {
		if s.Short > 0 {
			return true
		}
	}
	for _, s := range r.Products {
		if s.Short > 0 {
			return true
		}
	}
	return false
}
