package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdns/flowdns/internal/lease"
	"github.com/flowdns/flowdns/internal/model"
)

func TestFanOutEventsDeliversToEveryOutput(t *testing.T) {
	in := make(chan lease.Event, 1)
	a := make(chan lease.Event, 1)
	b := make(chan lease.Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fanOutEvents(ctx, in, a, b)

	ev := lease.Event{Type: lease.EventCreated}
	in <- ev
	close(in)

	select {
	case got := <-a:
		assert.Equal(t, ev.Type, got.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on output a")
	}
	select {
	case got := <-b:
		assert.Equal(t, ev.Type, got.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on output b")
	}

	_, ok := <-a
	assert.False(t, ok, "output a should be closed once the input closes")
}

func TestFanOutEventsStopsOnContextCancel(t *testing.T) {
	in := make(chan lease.Event)
	out := make(chan lease.Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fanOutEvents(ctx, in, out)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fanOutEvents did not return after context cancellation")
	}
}

func TestSubnetIndexRefReturnsZeroValueBeforeFirstSwap(t *testing.T) {
	ref := &subnetIndexRef{}
	_, ok := ref.Domain(uuid.New())
	assert.False(t, ok)
	_, ok = ref.Network(uuid.New())
	assert.False(t, ok)
}

func TestSubnetIndexRefLooksUpAfterSwap(t *testing.T) {
	id := uuid.New()
	_, network, _ := net.ParseCIDR("192.168.10.0/24")
	subnets := []model.Subnet{{ID: id, DomainName: "lan", Network: *network}}

	ref := &subnetIndexRef{}
	ref.Swap(newSubnetIndex(subnets))

	domain, ok := ref.Domain(id)
	require.True(t, ok)
	assert.Equal(t, "lan", domain)

	got, ok := ref.Network(id)
	require.True(t, ok)
	assert.Equal(t, "192.168.10.0/24", got.String())

	_, ok = ref.Domain(uuid.New())
	assert.False(t, ok)
}
