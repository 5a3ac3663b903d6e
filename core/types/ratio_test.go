package types

import (
	"errors"
	"testing"
)

func TestMakeRatioValidation(t *testing.T) {
	cases := []struct {
		name string
		num  Amount
		den  Amount
	}{
		{name: "same keyword", num: AmountOf("USD", 1), den: AmountOf("USD", 2)},
		{name: "zero numerator", num: AmountOf("Osmos", 0), den: AmountOf("USD", 4)},
		{name: "zero denominator", num: AmountOf("Osmos", 10), den: AmountOf("USD", 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := MakeRatio(tc.num, tc.den); !errors.Is(err, ErrInvalidRatio) {
				t.Fatalf("expected ErrInvalidRatio, got %v", err)
			}
		})
	}
}

func TestConvert(t *testing.T) {
	cases := []struct {
		name   string
		amount Amount
		num    Amount
		den    Amount
		want   Amount
	}{
		{name: "one to seven", amount: AmountOf("Atoms", 10), num: AmountOf("Atoms", 1), den: AmountOf("USD", 7), want: AmountOf("USD", 70)},
		{name: "ten to four", amount: AmountOf("Osmos", 100), num: AmountOf("Osmos", 10), den: AmountOf("USD", 4), want: AmountOf("USD", 40)},
		{name: "floors remainder", amount: AmountOf("Osmos", 19), num: AmountOf("Osmos", 10), den: AmountOf("USD", 4), want: AmountOf("USD", 7)},
		{name: "zero quantity", amount: AmountOf("Osmos", 0), num: AmountOf("Osmos", 10), den: AmountOf("USD", 4), want: AmountOf("USD", 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ratio, err := MakeRatio(tc.num, tc.den)
			if err != nil {
				t.Fatalf("ratio: %v", err)
			}
			got, err := Convert(tc.amount, ratio)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestConvertRejectsForeignKeyword(t *testing.T) {
	ratio, err := MakeRatio(AmountOf("Osmos", 10), AmountOf("USD", 4))
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	if _, err := Convert(AmountOf("Atoms", 10), ratio); !errors.Is(err, ErrAssetMismatch) {
		t.Fatalf("expected ErrAssetMismatch, got %v", err)
	}
}

func TestConvertRejectsUnvalidatedRatio(t *testing.T) {
	if _, err := Convert(AmountOf("Osmos", 10), Ratio{Numerator: AmountOf("Osmos", 0), Denominator: AmountOf("USD", 1)}); !errors.Is(err, ErrInvalidRatio) {
		t.Fatalf("expected ErrInvalidRatio, got %v", err)
	}
}

func TestAllocationArithmetic(t *testing.T) {
	alloc, err := NewAllocation(AmountOf("A", 2), AmountOf("B", 1), AmountOf("A", 3))
	if err != nil {
		t.Fatalf("allocation: %v", err)
	}
	if alloc.Get("A") != AmountOf("A", 5) {
		t.Fatalf("duplicates not merged: %s", alloc)
	}
	if _, ok := alloc.Single(); ok {
		t.Fatalf("two keywords reported as single")
	}
	if err := alloc.Sub(AmountOf("B", 1)); err != nil {
		t.Fatalf("sub: %v", err)
	}
	single, ok := alloc.Single()
	if !ok || single != AmountOf("A", 5) {
		t.Fatalf("expected single 5 A, got %s (%v)", single, ok)
	}
	if err := alloc.Sub(AmountOf("A", 6)); !errors.Is(err, ErrInsufficientQuantity) {
		t.Fatalf("expected ErrInsufficientQuantity, got %v", err)
	}
	if !alloc.Covers(Allocation{"A": AmountOf("A", 5)}) || alloc.Covers(Allocation{"C": AmountOf("C", 1)}) {
		t.Fatalf("covers mismatch for %s", alloc)
	}
	if !alloc.Equal(Allocation{"A": AmountOf("A", 5), "Z": AmountOf("Z", 0)}) {
		t.Fatalf("zero entries should not affect equality")
	}
	if alloc.String() != "{A: 5}" {
		t.Fatalf("unexpected rendering %q", alloc.String())
	}
}
