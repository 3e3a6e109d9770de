package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/killerdox/buildsync/internal/build"
	"github.com/killerdox/buildsync/pkg/types"
)

func TestLocalPortDoesNotHearItself(t *testing.T) {
	bc := NewLocalBroadcaster(zap.NewNop())
	a := bc.Join()
	b := bc.Join()

	var aGot, bGot []types.Envelope
	a.Subscribe(func(env types.Envelope) { aGot = append(aGot, env) })
	b.Subscribe(func(env types.Envelope) { bGot = append(bGot, env) })

	a.Publish(types.Envelope{Type: types.EventBuildReset, OriginID: "A", UpdatedAt: 1})

	assert.Empty(t, aGot, "posting port must not receive its own message")
	require.Len(t, bGot, 1)
	assert.Equal(t, types.EventBuildReset, bGot[0].Type)
}

func TestLocalFanOutReachesAllOtherPorts(t *testing.T) {
	bc := NewLocalBroadcaster(zap.NewNop())
	a := bc.Join()

	heard := 0
	for i := 0; i < 3; i++ {
		bc.Join().Subscribe(func(types.Envelope) { heard++ })
	}

	a.Publish(types.Envelope{Type: types.EventBuildUpdate, OriginID: "A", UpdatedAt: 1})
	assert.Equal(t, 3, heard)
}

func TestClosedPortStopsReceiving(t *testing.T) {
	bc := NewLocalBroadcaster(zap.NewNop())
	a := bc.Join()
	b := bc.Join()

	got := 0
	b.Subscribe(func(types.Envelope) { got++ })
	b.Close()
	b.Close() // idempotent

	a.Publish(types.Envelope{Type: types.EventBuildUpdate, OriginID: "A", UpdatedAt: 1})
	assert.Zero(t, got)
}

// Two stores on one device observe each other's reset through the local
// channel alone, no network transport attached.
func TestSameDeviceResetWithoutNetwork(t *testing.T) {
	bc := NewLocalBroadcaster(zap.NewNop())

	tabA := NewStore(Tee{Local: bc.Join()}, zap.NewNop())
	tabB := NewStore(Tee{Local: bc.Join()}, zap.NewNop())

	tabB.SelectCharacter(&build.Character{ID: "nurse", Name: "Nurse"})
	// Local fan-out is synchronous, tab A already sees the selection.
	require.NotNil(t, tabA.Current().Character)

	tabA.Reset()

	got := tabB.Current()
	assert.Nil(t, got.Character)
	assert.Empty(t, got.Abilities)
}

// Local and network delivery of the same event must not double-apply.
func TestTeeDoubleDeliveryIsHarmless(t *testing.T) {
	bc := NewLocalBroadcaster(zap.NewNop())
	net := &fakeTransport{}

	s := NewStore(Tee{Net: net, Local: bc.Join()}, zap.NewNop())
	sender := bc.Join()

	incoming := build.Empty()
	incoming.Character = &build.Character{ID: "huntress", Name: "Huntress"}
	incoming.OriginID = "remote-A"
	incoming.UpdatedAt = 100
	env := updateEnvelope(t, incoming)

	changes := 0
	s.OnChange(func(build.Build) { changes++ })

	sender.Publish(env) // same-device path
	net.deliver(env)    // network path, duplicate

	assert.Equal(t, "Huntress", s.Current().Character.Name)
	assert.Equal(t, 1, changes, "duplicate must be rejected as stale")
}

func TestTeeSubscribeCancelCoversBothSides(t *testing.T) {
	bc := NewLocalBroadcaster(zap.NewNop())
	net := &fakeTransport{}
	tee := Tee{Net: net, Local: bc.Join()}
	sender := bc.Join()

	got := 0
	cancel := tee.Subscribe(func(types.Envelope) { got++ })

	env := types.Envelope{Type: types.EventBuildUpdate, OriginID: "A", UpdatedAt: 1}
	sender.Publish(env)
	net.deliver(env)
	require.Equal(t, 2, got)

	cancel()
	cancel() // safe to call twice
	sender.Publish(env)
	net.deliver(env)
	assert.Equal(t, 2, got)
}
