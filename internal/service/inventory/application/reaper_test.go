package application

import (
	"context"
	"errors"
	"time"

	"stockledger/internal/service/inventory/domain"
)

type countingLocker struct {
	lockErr error
	locks   int
	unlocks int
}

func (l *countingLocker) Lock(context.Context) error {
	if l.lockErr != nil {
		return l.lockErr
	}
	l.locks++
	return nil
}

func (l *countingLocker) Unlock() error {
	l.unlocks++
	return nil
}

func (s *ReservationServiceTestSuite) TestReaperRunOnceHoldsLock() {
	s.provision("X", "W", 10, 0)
	_, err := s.svc.Reserve(s.ctx, ReserveRequest{SKU: "X", Warehouse: "W", Qty: 3, TTLSeconds: 30})
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)

	locker := &countingLocker{}
	n, err := NewReaper(s.svc, locker, time.Second).RunOnce(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(1, locker.locks)
	s.Equal(1, locker.unlocks)
	s.Equal(0, s.stock("X", "W").Reserved)
}

func (s *ReservationServiceTestSuite) TestReaperSkipsPassWhenLockFails() {
	s.provision("X", "W", 10, 0)
	_, err := s.svc.Reserve(s.ctx, ReserveRequest{SKU: "X", Warehouse: "W", Qty: 3, TTLSeconds: 30})
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)

	locker := &countingLocker{lockErr: errors.New("zk session expired")}
	_, err = NewReaper(s.svc, locker, time.Second).RunOnce(s.ctx)
	s.Error(err)
	s.Equal(0, locker.unlocks)
	s.Equal(3, s.stock("X", "W").Reserved)
}

func (s *ReservationServiceTestSuite) TestReaperRunWithoutLocker() {
	s.provision("X", "W", 10, 0)
	_, err := s.svc.Reserve(s.ctx, ReserveRequest{SKU: "X", Warehouse: "W", Qty: 2, TTLSeconds: 30})
	s.Require().NoError(err)
	s.clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- NewReaper(s.svc, nil, 10*time.Millisecond).Run(ctx) }()

	s.Eventually(func() bool {
		released := true
		list, err := s.svc.ListReservations(s.ctx, domain.ReservationFilter{SKU: "X", Released: &released})
		return err == nil && len(list) == 1
	}, 5*time.Second, 20*time.Millisecond)
	cancel()
	s.NoError(<-done)
	s.Equal(0, s.stock("X", "W").Reserved)
}
