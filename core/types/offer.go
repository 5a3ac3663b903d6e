package types

import (
	"fmt"
	"sort"
)

// Allocation maps asset keywords to amounts. Entries are always keyed by
// their own keyword.
type Allocation map[Keyword]Amount

// NewAllocation builds an allocation, merging duplicate keywords.
func NewAllocation(amounts ...Amount) (Allocation, error) {
	alloc := make(Allocation, len(amounts))
	for _, amount := range amounts {
		if err := alloc.Add(amount); err != nil {
			return nil, err
		}
	}
	return alloc, nil
}

// Clone returns a copy that can be mutated independently.
func (a Allocation) Clone() Allocation {
	clone := make(Allocation, len(a))
	for k, v := range a {
		clone[k] = v
	}
	return clone
}

// Keywords returns the allocation keywords in sorted order.
func (a Allocation) Keywords() []Keyword {
	keys := make([]Keyword, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Get returns the amount for keyword, or the zero amount of keyword.
func (a Allocation) Get(keyword Keyword) Amount {
	if amount, ok := a[keyword]; ok {
		return amount
	}
	return Amount{keyword: keyword}
}

// Single returns the only entry. ok is false when the allocation holds zero
// or several keywords.
func (a Allocation) Single() (Amount, bool) {
	if len(a) != 1 {
		return Amount{}, false
	}
	for _, amount := range a {
		return amount, true
	}
	return Amount{}, false
}

// Add increments the allocation in place.
func (a Allocation) Add(amount Amount) error {
	if err := amount.keyword.Validate(); err != nil {
		return err
	}
	next, err := Add(a.Get(amount.keyword), amount)
	if err != nil {
		return err
	}
	a[amount.keyword] = next
	return nil
}

// Sub decrements the allocation in place. Entries reaching zero are removed.
func (a Allocation) Sub(amount Amount) error {
	next, err := Sub(a.Get(amount.keyword), amount)
	if err != nil {
		return err
	}
	if next.IsZero() {
		delete(a, amount.keyword)
		return nil
	}
	a[amount.keyword] = next
	return nil
}

// Covers reports whether a holds at least every amount in other.
func (a Allocation) Covers(other Allocation) bool {
	for k, want := range other {
		have := a.Get(k)
		if have.quantity.Lt(&want.quantity) {
			return false
		}
	}
	return true
}

// Equal reports whether both allocations hold the same non-zero quantities.
func (a Allocation) Equal(other Allocation) bool {
	for k, v := range a {
		if v.IsZero() {
			continue
		}
		if other.Get(k) != v {
			return false
		}
	}
	for k, v := range other {
		if v.IsZero() {
			continue
		}
		if a.Get(k) != v {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer with keywords in sorted order.
func (a Allocation) String() string {
	out := "{"
	for i, k := range a.Keywords() {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s: %s", k, a[k].Dec())
	}
	return out + "}"
}

// Offer is a user's request: what they give and what they want in return.
type Offer struct {
	Give Allocation
	Want Allocation
}

// Clone returns a deep copy of the offer.
func (o Offer) Clone() Offer {
	return Offer{Give: o.Give.Clone(), Want: o.Want.Clone()}
}
