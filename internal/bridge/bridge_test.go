// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/pushd/internal/wire"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const helloText = `{"uaid":null,"message_month":"2025-01","reset_uaid":false,"rotate_message_table":false}`

func recvNow(t *testing.T, link *Link) *Handle {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h, err := link.Recv(ctx)
	require.NoError(t, err)
	return h
}

func awaitNow[T any](t *testing.T, p *Pending[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := p.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "pending never resolved")
	return v, err
}

func TestOneshotFiresOnce(t *testing.T) {
	o := newOneshot[int]()
	assert.True(t, o.send(1, nil))
	assert.False(t, o.send(2, nil))
	assert.False(t, o.fail(errors.New("late")))

	p := &Pending[int]{shot: o}
	v, err := awaitNow(t, p)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestOneshotConcurrentSenders(t *testing.T) {
	o := newOneshot[int]()
	var wg sync.WaitGroup
	wins := make(chan int, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if o.send(i, nil) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)
	require.Len(t, wins, 1)
	winner := <-wins
	assert.Equal(t, winner, o.val)
}

func TestAwaitContextLeavesCallInFlight(t *testing.T) {
	link := NewLink()
	defer link.Close()
	b := New(link)
	p := b.Hello(time.Unix(1, 0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	var f Fault
	require.True(t, recvNow(t, link).Complete(helloText, &f))
	got, err := awaitNow(t, p)
	require.NoError(t, err)
	assert.Equal(t, "2025-01", got.MessageMonth)
}

func TestResolved(t *testing.T) {
	v, err := awaitNow(t, Resolved(7, nil))
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	select {
	case <-Resolved[int](0, ErrCancelled).Done():
	default:
		t.Fatal("resolved pending must be done")
	}
}

func TestInitiateEncodesAndCompletes(t *testing.T) {
	link := NewLink()
	defer link.Close()
	b := New(link)
	uaid := uuid.New()

	p := b.Hello(time.Unix(10, 500_000_000), &uaid)
	assert.Equal(t, wire.CommandHello, p.Command())
	select {
	case <-p.Done():
		t.Fatal("pending resolved before completion")
	default:
	}

	h := recvNow(t, link)
	assert.Equal(t, wire.CommandHello, h.Command())
	var f Fault
	input, ok := h.Input(&f)
	require.True(t, ok)
	var req map[string]any
	require.NoError(t, json.Unmarshal([]byte(input), &req))
	assert.Equal(t, "hello", req["command"])
	assert.EqualValues(t, 10500, req["connected_at"])
	assert.Equal(t, uaid.String(), req["uaid"])

	require.True(t, h.Complete(helloText, &f))
	assert.False(t, f.Failed())
	require.True(t, h.Free(&f))

	got, err := awaitNow(t, p)
	require.NoError(t, err)
	assert.Nil(t, got.UAID)
	assert.Equal(t, "2025-01", got.MessageMonth)
}

func TestCompleteWithErrorEnvelope(t *testing.T) {
	link := NewLink()
	defer link.Close()
	p := New(link).CheckStorage(uuid.New(), "2025-01", true, nil)

	var f Fault
	require.True(t, recvNow(t, link).Complete(wire.EncodeError("boom"), &f))
	_, err := awaitNow(t, p)
	var app *wire.ApplicationError
	require.True(t, errors.As(err, &app))
	assert.Equal(t, "boom", app.Message)
	assert.Equal(t, OutcomeApplication, Classify(err))
}

func TestCompleteWithMalformedOutput(t *testing.T) {
	link := NewLink()
	defer link.Close()
	p := New(link).Register(uuid.New(), uuid.New(), "2025-01")

	var f Fault
	require.True(t, recvNow(t, link).Complete(`{"unexpected":1}`, &f))
	got, err := awaitNow(t, p)
	assert.ErrorIs(t, err, wire.ErrDeserialization)
	assert.Equal(t, wire.RegisterResponse{}, got)
}

func TestSecondCompletionRejected(t *testing.T) {
	link := NewLink()
	defer link.Close()
	p := New(link).Unregister(uuid.New(), uuid.New(), "2025-01")
	h := recvNow(t, link)

	var f Fault
	require.True(t, h.Complete(`{"success":true}`, &f))
	assert.False(t, h.Complete(`{"success":false}`, &f))
	assert.Equal(t, FaultRetired, f.Code)
	assert.Equal(t, OpComplete, f.Op)
	assert.ErrorIs(t, &f, ErrRetired)

	f.Reset()
	_, ok := h.Input(&f)
	assert.False(t, ok)
	assert.Equal(t, FaultRetired, f.Code)

	got, err := awaitNow(t, p)
	require.NoError(t, err)
	assert.True(t, got.Success)

	// Retirement is not a fault of the guard itself.
	assert.Nil(t, h.guard.Poisoned())
}

func TestFreeBeforeCompletionCancels(t *testing.T) {
	link := NewLink()
	defer link.Close()
	p := New(link).DropUser(uuid.New())
	h := recvNow(t, link)

	var f Fault
	require.True(t, h.Free(&f))
	_, err := awaitNow(t, p)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, OutcomeCancelled, Classify(err))

	assert.False(t, h.Complete(`{"success":true}`, &f))
	assert.Equal(t, FaultRetired, f.Code)
	f.Reset()
	assert.True(t, h.Free(&f), "freeing twice is a no-op")
}

func TestOutOfOrderCompletion(t *testing.T) {
	link := NewLink()
	defer link.Close()
	b := New(link)

	const n = 5
	pendings := make([]*Pending[wire.RegisterResponse], n)
	for i := range pendings {
		pendings[i] = b.Register(uuid.New(), uuid.New(), "2025-01")
	}
	handles := make([]*Handle, n)
	for i := range handles {
		handles[i] = recvNow(t, link)
	}

	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var f Fault
			key, _ := json.Marshal(wire.RegisterResponse{EndpointKey: string(rune('a' + i))})
			handles[i].Complete(string(key), &f)
			handles[i].Free(&f)
		}(i)
	}
	wg.Wait()

	for i, p := range pendings {
		got, err := awaitNow(t, p)
		require.NoError(t, err)
		assert.Equal(t, string(rune('a'+i)), got.EndpointKey)
	}
}

func TestLinkCloseCancelsQueuedAndFailsLater(t *testing.T) {
	link := NewLink()
	b := New(link)
	queued := b.Hello(time.Now(), nil)
	assert.Equal(t, 1, link.Len())

	link.Close()
	link.Close()
	_, err := awaitNow(t, queued)
	assert.ErrorIs(t, err, ErrCancelled)

	for i := 0; i < 3; i++ {
		_, err = awaitNow(t, b.Hello(time.Now(), nil))
		assert.ErrorIs(t, err, ErrLinkGone)
	}

	_, err = link.Recv(context.Background())
	assert.ErrorIs(t, err, ErrLinkGone)
	select {
	case <-link.Gone():
	default:
		t.Fatal("gone channel must be closed")
	}
}

func TestRecvWaitsForSend(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	link := NewLink()
	b := New(link)
	got := make(chan string, 1)
	go func() {
		h, err := link.Recv(context.Background())
		if err != nil {
			got <- err.Error()
			return
		}
		got <- h.Command()
		var f Fault
		h.Free(&f)
	}()

	p := b.CheckStorage(uuid.New(), "2025-01", false, nil)
	select {
	case cmd := <-got:
		assert.Equal(t, wire.CommandCheckStorage, cmd)
	case <-time.After(time.Second):
		t.Fatal("receiver never woke up")
	}
	_, err := awaitNow(t, p)
	assert.ErrorIs(t, err, ErrCancelled)
	link.Close()
}

func TestRecvUnblocksOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	link := NewLink()
	errc := make(chan error, 1)
	go func() {
		_, err := link.Recv(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	link.Close()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrLinkGone)
	case <-time.After(time.Second):
		t.Fatal("recv did not return after close")
	}
}

type counter struct{ n int }

func TestGuardContainsPanicAndPoisons(t *testing.T) {
	var poisoned []*Fault
	g := NewGuard(&counter{}, func(_ *counter, f *Fault) { poisoned = append(poisoned, f) })

	var f Fault
	require.True(t, g.Catch(&f, "inc", func(c *counter) *Fault { c.n++; return nil }))
	assert.False(t, f.Failed())

	ok := g.Catch(&f, "boom", func(*counter) *Fault { panic("kaboom") })
	assert.False(t, ok)
	assert.Equal(t, FaultPanic, f.Code)
	assert.Equal(t, "boom", f.Op)
	assert.Contains(t, f.Message, "kaboom")
	assert.ErrorIs(t, &f, ErrBoundaryFault)

	ran := false
	f.Reset()
	ok = g.Catch(&f, "inc", func(*counter) *Fault { ran = true; return nil })
	assert.False(t, ok)
	assert.False(t, ran, "poisoned guard must not run the operation")
	assert.Equal(t, FaultPanic, f.Code)
	assert.Contains(t, f.Message, "poisoned")

	require.Len(t, poisoned, 1)
	assert.NotNil(t, g.Poisoned())
}

func TestGuardToleratesNilSlotAndPanickingHook(t *testing.T) {
	g := NewGuard(&counter{}, func(*counter, *Fault) { panic("hook") })
	assert.NotPanics(t, func() {
		assert.False(t, g.Catch(nil, "op", func(*counter) *Fault { panic(errors.New("x")) }))
	})
}

type panicSink struct {
	shot *oneshot[wire.SuccessResponse]
}

func (panicSink) complete(string) { panic("decoder exploded") }

func (s panicSink) fail(err error) { s.shot.fail(err) }

func TestHandlePanicResolvesPendingWithFault(t *testing.T) {
	shot := newOneshot[wire.SuccessResponse]()
	p := &Pending[wire.SuccessResponse]{shot: shot, command: wire.CommandDropUser}
	h := newHandle(&call{command: wire.CommandDropUser, input: "{}", sink: panicSink{shot: shot}})

	var f Fault
	assert.False(t, h.Complete(`{"success":true}`, &f))
	assert.Equal(t, FaultPanic, f.Code)

	_, err := awaitNow(t, p)
	assert.ErrorIs(t, err, ErrBoundaryFault)
	assert.Equal(t, OutcomeBoundaryFault, Classify(err))

	f.Reset()
	assert.False(t, h.Free(&f))
	assert.Equal(t, FaultPanic, f.Code)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(nil))
	assert.Equal(t, OutcomeLinkGone, Classify(ErrLinkGone))
	assert.Equal(t, OutcomeDeserialize, Classify(&wire.DeserializationError{Target: "x", Err: errors.New("bad")}))
	assert.Equal(t, OutcomeContext, Classify(context.DeadlineExceeded))
	assert.Equal(t, OutcomeError, Classify(errors.New("other")))
}

func TestFaultCodeString(t *testing.T) {
	assert.Equal(t, "none", FaultNone.String())
	assert.Equal(t, "panic", FaultPanic.String())
	assert.Equal(t, "retired", FaultRetired.String())
	assert.Equal(t, "fault(9)", FaultCode(9).String())
}
