package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorNotifiesOnTransitionsOnly(t *testing.T) {
	m := NewMonitor(true)
	ch := m.Subscribe()

	m.SetOfflineStatus(true) // no transition
	select {
	case v := <-ch:
		t.Fatalf("unexpected notification %v", v)
	default:
	}

	m.SetOfflineStatus(false)
	select {
	case v := <-ch:
		assert.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("missing online notification")
	}
	assert.False(t, m.Offline())

	m.SetOfflineStatus(true)
	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("missing offline notification")
	}
}

func TestMonitorRunProbe(t *testing.T) {
	var healthy atomic.Bool
	probe := func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("unreachable")
	}

	m := NewMonitor(false)
	ch := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.RunProbe(ctx, probe, 10*time.Millisecond)

	// first check runs immediately and reads offline
	select {
	case v := <-ch:
		require.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("probe never reported offline")
	}

	healthy.Store(true)
	select {
	case v := <-ch:
		require.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("probe never reported recovery")
	}
}
