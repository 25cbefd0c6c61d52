// README: Concurrency tests for the claim race (run with -race).
package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"unipool/internal/modules/pricing"
	"unipool/internal/modules/ride"
	"unipool/internal/types"
)

func TestConcurrentAcceptSingleWinner(t *testing.T) {
	ctx := context.Background()
	const drivers = 8

	rides := newMemRides()
	for i := 0; i < drivers; i++ {
		rides.rides[types.ID(fmt.Sprintf("ride%d", i))] = openRide(fmt.Sprintf("ride%d", i), fmt.Sprintf("d%d", i), 2)
	}
	env := newTestEnv(t, rides, map[types.ID]*pricing.Quote{"q1": validQuote("q1", "p1")})

	r, err := env.svc.CreateBooking(ctx, CreateBookingCommand{RiderID: "p1", QuoteID: "q1", PickupAt: time.Now().Add(25 * time.Minute)})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	start := make(chan struct{})
	errs := make(chan error, drivers)
	var wg sync.WaitGroup
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := env.svc.Accept(ctx, AcceptCommand{
				RequestID: r.ID,
				DriverID:  types.ID(fmt.Sprintf("d%d", i)),
				RideID:    types.ID(fmt.Sprintf("ride%d", i)),
			})
			errs <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)

	wins, conflicts := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != drivers-1 {
		t.Fatalf("expected exactly 1 winner and %d conflicts, got %d/%d", drivers-1, wins, conflicts)
	}

	got, err := env.svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusConfirmed || got.DriverID == nil || got.RideID == nil {
		t.Fatalf("winner not recorded: %+v", got)
	}
	if env.wallet.holdCount() != 1 {
		t.Fatalf("exactly one hold expected, got %d", env.wallet.holdCount())
	}

	// Every losing ride must keep all its seats; the winning ride gave one.
	for id, rd := range rides.rides {
		want := 2
		if id == *got.RideID {
			want = 1
		}
		if rd.SeatsFree != want {
			t.Fatalf("ride %s has %d seats free, want %d", id, rd.SeatsFree, want)
		}
	}
}

func TestConcurrentJoinLastSeat(t *testing.T) {
	ctx := context.Background()
	const riders = 6

	rides := newMemRides(openRide("ride1", "d1", 1))
	quotes := make(map[types.ID]*pricing.Quote, riders)
	for i := 0; i < riders; i++ {
		qid := types.ID(fmt.Sprintf("q%d", i))
		quotes[qid] = validQuote(string(qid), fmt.Sprintf("p%d", i))
	}
	env := newTestEnv(t, rides, quotes)

	requests := make([]*Request, riders)
	for i := 0; i < riders; i++ {
		r, err := env.svc.CreateJoin(ctx, CreateJoinCommand{
			RiderID:  types.ID(fmt.Sprintf("p%d", i)),
			RideID:   "ride1",
			QuoteID:  types.ID(fmt.Sprintf("q%d", i)),
			PickupAt: time.Now().Add(25 * time.Minute),
		})
		if err != nil {
			t.Fatalf("create join %d: %v", i, err)
		}
		requests[i] = r
	}

	start := make(chan struct{})
	errs := make(chan error, riders)
	var wg sync.WaitGroup
	for _, r := range requests {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			<-start
			_, err := env.svc.Accept(ctx, AcceptCommand{RequestID: id, DriverID: "d1"})
			errs <- err
		}(r.ID)
	}
	close(start)
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("one seat, one winner expected, got %d", wins)
	}
	if rides.seatsFree("ride1") != 0 {
		t.Fatalf("seat accounting broken: %d free", rides.seatsFree("ride1"))
	}
	if rides.rides["ride1"].Status != ride.StatusFull {
		t.Fatalf("ride should be full, got %s", rides.rides["ride1"].Status)
	}
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	ctx := context.Background()
	rides := newMemRides(openRide("ride1", "d1", 2))
	env := newTestEnv(t, rides, map[types.ID]*pricing.Quote{"q1": validQuote("q1", "p1")})

	r, err := env.svc.CreateJoin(ctx, CreateJoinCommand{RiderID: "p1", RideID: "ride1", QuoteID: "q1", PickupAt: time.Now().Add(25 * time.Minute)})
	if err != nil {
		t.Fatalf("create join: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := env.svc.Accept(ctx, AcceptCommand{RequestID: r.ID, DriverID: "d1"})
		errs <- err
	}()
	go func() {
		defer wg.Done()
		errs <- env.svc.Cancel(ctx, CancelCommand{RequestID: r.ID, ActorType: "rider", ActorID: "p1"})
	}()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil && !errors.Is(err, ErrConflict) && !errors.Is(err, ErrInvalidState) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := env.svc.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	switch got.Status {
	case StatusConfirmed:
		if rides.seatsFree("ride1") != 1 {
			t.Fatalf("confirmed but seats=%d", rides.seatsFree("ride1"))
		}
	case StatusCancelled:
		if rides.seatsFree("ride1") != 2 {
			t.Fatalf("cancelled but seats=%d", rides.seatsFree("ride1"))
		}
	default:
		t.Fatalf("unexpected final status %s", got.Status)
	}
}

func TestHoldFailureLeavesRequestRetryable(t *testing.T) {
	ctx := context.Background()
	rides := newMemRides(openRide("ride1", "d1", 2))
	env := newTestEnv(t, rides, map[types.ID]*pricing.Quote{"q1": validQuote("q1", "p1")})

	r, err := env.svc.CreateBooking(ctx, CreateBookingCommand{RiderID: "p1", QuoteID: "q1", PickupAt: time.Now().Add(25 * time.Minute)})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	env.wallet.failHold = true
	if _, err := env.svc.Accept(ctx, AcceptCommand{RequestID: r.ID, DriverID: "d1", RideID: "ride1"}); err == nil {
		t.Fatal("expected hold failure to surface")
	}

	// The claim stood; retrying the same accept heals the missing hold.
	env.wallet.failHold = false
	got, err := env.svc.Accept(ctx, AcceptCommand{RequestID: r.ID, DriverID: "d1", RideID: "ride1"})
	if err != nil {
		t.Fatalf("retry accept: %v", err)
	}
	if got.Status != StatusConfirmed || got.HoldRef == "" {
		t.Fatalf("retry should confirm with a hold, got %+v", got)
	}
	if rides.seatsFree("ride1") != 1 {
		t.Fatalf("retry must not take a second seat, %d free", rides.seatsFree("ride1"))
	}
}
