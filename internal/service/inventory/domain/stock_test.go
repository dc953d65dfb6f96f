package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStockRecord_Reserve(t *testing.T) {
	s := &StockRecord{SKU: "A1", Warehouse: "W1", OnHand: 10, Reserved: 8}

	err := s.Reserve(3)
	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 2 || insufficient.Requested != 3 {
		t.Errorf("unexpected error payload: %+v", insufficient)
	}
	if !errors.Is(err, ErrInsufficientStock) {
		t.Errorf("expected errors.Is(err, ErrInsufficientStock)")
	}
	if s.Reserved != 8 {
		t.Errorf("failed reserve must not mutate, reserved=%d", s.Reserved)
	}

	if err := s.Reserve(2); err != nil {
		t.Fatalf("reserve exact remainder: %v", err)
	}
	if s.Available() != 0 {
		t.Errorf("expected available 0, got %d", s.Available())
	}
}

func TestStockRecord_ReleaseReservedClampsAtZero(t *testing.T) {
	s := &StockRecord{OnHand: 10, Reserved: 3}
	s.ReleaseReserved(10)
	if s.Reserved != 0 {
		t.Errorf("expected reserved 0, got %d", s.Reserved)
	}
	if s.OnHand != 10 {
		t.Errorf("release must not touch on_hand, got %d", s.OnHand)
	}
}

func TestStockRecord_Ship(t *testing.T) {
	s := &StockRecord{SKU: "A1", Warehouse: "W1", OnHand: 10, Reserved: 2}
	if err := s.Ship(3); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if s.OnHand != 10 || s.Reserved != 2 {
		t.Errorf("failed ship must not mutate: %+v", s)
	}

	if err := s.Ship(2); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if s.OnHand != 8 || s.Reserved != 0 {
		t.Errorf("unexpected state after ship: on_hand=%d reserved=%d", s.OnHand, s.Reserved)
	}
}

func TestStockRecord_CheckInvariant(t *testing.T) {
	cases := []struct {
		onHand, reserved int
		ok               bool
	}{
		{10, 0, true},
		{10, 10, true},
		{0, 0, true},
		{5, 6, false},
		{5, -1, false},
	}
	for _, tc := range cases {
		s := &StockRecord{SKU: "A", Warehouse: "W", OnHand: tc.onHand, Reserved: tc.reserved}
		err := s.CheckInvariant()
		if tc.ok && err != nil {
			t.Errorf("on_hand=%d reserved=%d: unexpected error %v", tc.onHand, tc.reserved, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("on_hand=%d reserved=%d: expected ErrInvalidArgument, got %v", tc.onHand, tc.reserved, err)
		}
	}
}

func TestReservation_Lifecycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReservation("A1", "W1", 4, "order-1", "", now, 0)
	if !r.ExpiresAt.Equal(now.Add(DefaultReservationTTL)) {
		t.Errorf("expected default ttl, expires_at=%s", r.ExpiresAt)
	}
	if r.IsExpired(now) {
		t.Errorf("fresh reservation must not be expired")
	}
	if !r.IsExpired(r.ExpiresAt) {
		t.Errorf("reservation expires at expires_at")
	}

	if !r.MarkReleased() {
		t.Fatalf("first MarkReleased should report a change")
	}
	if r.MarkReleased() {
		t.Errorf("second MarkReleased should be a no-op")
	}
	if r.IsExpired(r.ExpiresAt.Add(time.Hour)) {
		t.Errorf("released reservation is never expired")
	}

	synthetic := NewReleasedReservation("A1", "W1", 2, "", "k", now)
	if !synthetic.Released || synthetic.ID == "" {
		t.Errorf("unexpected synthetic reservation %+v", synthetic)
	}
}

func TestNewReleaseRequest(t *testing.T) {
	qty := func(n int) *int { return &n }
	cases := []struct {
		name    string
		id, key string
		sku, wh string
		qty     *int
		want    ReleaseRequest
		wantErr bool
	}{
		{name: "id wins", id: "r1", key: "k", sku: "A", wh: "W", qty: qty(1), want: ReleaseByID{ReservationID: "r1"}},
		{name: "tuple", key: "k", sku: "A", wh: "W", qty: qty(2), want: ReleaseByStockTuple{SKU: "A", Warehouse: "W", Qty: 2, IdempotencyKey: "k"}},
		{name: "key only", key: "k", want: ReleaseByIdempotencyKey{Key: "k"}},
		{name: "tuple without qty falls back to key", key: "k", sku: "A", wh: "W", want: ReleaseByIdempotencyKey{Key: "k"}},
		{name: "zero qty", sku: "A", wh: "W", qty: qty(0), wantErr: true},
		{name: "nothing", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewReleaseRequest(tc.id, tc.key, tc.sku, tc.wh, tc.qty, "")
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Fatalf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{fmt.Errorf("lookup: %w", ErrNotFound), KindNotFound},
		{&InsufficientStockError{}, KindInsufficientStock},
		{ErrInvalidState, KindInvalidState},
		{ErrInvalidArgument, KindInvalidArgument},
		{errors.New("driver: bad connection"), KindInternal},
	}
	for _, tc := range cases {
		if got := Kind(tc.err); got != tc.want {
			t.Errorf("Kind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
	if IsDomainError(errors.New("boom")) || IsDomainError(nil) {
		t.Errorf("internal errors and nil are not domain errors")
	}
	if !IsDomainError(ErrNotFound) {
		t.Errorf("ErrNotFound is a domain error")
	}
}

func TestNormalizeLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultListLimit, -5: DefaultListLimit, 7: 7, MaxListLimit + 1: MaxListLimit} {
		if got := NormalizeLimit(in); got != want {
			t.Errorf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
