package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHub() *Hub {
	return NewHub(zerolog.Nop())
}

func recvJSON(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-c.Send:
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(msg, &decoded))
		return decoded
	case <-time.After(time.Second):
		t.Fatal("expected a message, got none")
		return nil
	}
}

func TestHub_BroadcastReachesOnlyAdmins(t *testing.T) {
	h := testHub()
	admin := NewClient(nil, 1, RoleAdmin)
	student := NewClient(nil, 2, RoleStudent)
	h.Register(admin)
	h.Register(student)

	h.BroadcastToAdmins(PolicyUpdateEvent{Event: EventPolicyUpdate, Action: "pause"})

	decoded := recvJSON(t, admin)
	assert.Equal(t, "policy_update", decoded["event"])
	assert.Equal(t, "pause", decoded["policy_action"])

	select {
	case <-student.Send:
		t.Fatal("student must not receive admin broadcasts")
	default:
	}
}

func TestHub_NoReplayForLateJoiners(t *testing.T) {
	h := testHub()

	h.BroadcastToAdmins(PongResponse{Event: EventPong})

	late := NewClient(nil, 1, RoleAdmin)
	h.Register(late)

	select {
	case <-late.Send:
		t.Fatal("late joiner must not receive earlier broadcasts")
	default:
	}

	// Only events broadcast while registered arrive.
	h.BroadcastToAdmins(PongResponse{Event: EventPong})
	recvJSON(t, late)
}

func TestHub_SlowClientDropsWithoutBlocking(t *testing.T) {
	h := testHub()
	slow := NewClient(nil, 1, RoleAdmin)
	fast := NewClient(nil, 2, RoleAdmin)
	h.Register(slow)
	h.Register(fast)

	// Overflow the slow client's buffer; fast keeps draining.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendBufferSize*2; i++ {
			<-fast.Send
		}
	}()

	for i := 0; i < sendBufferSize*2; i++ {
		h.BroadcastToAdmins(PongResponse{Event: EventPong})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Len(t, slow.Send, sendBufferSize, "slow client keeps a full buffer, excess dropped")
}

func TestHub_UnregisterClosesSendOnce(t *testing.T) {
	h := testHub()
	c := NewClient(nil, 1, RoleAdmin)
	h.Register(c)
	assert.Equal(t, 1, h.AdminCount())

	h.Unregister(c)
	h.Unregister(c) // Idempotent.
	assert.Equal(t, 0, h.AdminCount())

	_, open := <-c.Send
	assert.False(t, open, "send channel closed after unregister")

	// Broadcasting after unregister must not panic on the closed channel.
	h.BroadcastToAdmins(PongResponse{Event: EventPong})
}

func TestHub_AdminCount(t *testing.T) {
	h := testHub()
	assert.Equal(t, 0, h.AdminCount())

	a1 := NewClient(nil, 1, RoleAdmin)
	a2 := NewClient(nil, 2, RoleAdmin)
	s := NewClient(nil, 3, RoleStudent)
	h.Register(a1)
	h.Register(a2)
	h.Register(s)
	assert.Equal(t, 2, h.AdminCount())

	h.Unregister(a1)
	assert.Equal(t, 1, h.AdminCount())
}
