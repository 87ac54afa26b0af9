package mcphttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSEHubNamespaceFanout(t *testing.T) {
	hub := newSSEHub()
	nsSub, cancelNS := hub.subscribe("weather")
	defer cancelNS()
	globalSub, cancelGlobal := hub.subscribe("")
	defer cancelGlobal()
	otherSub, cancelOther := hub.subscribe("files")
	defer cancelOther()

	hub.publish("weather", []byte(`{"hello":"world"}`))

	select {
	case msg := <-nsSub.mailbox:
		assert.Equal(t, `{"hello":"world"}`, string(msg))
	default:
		t.Fatal("namespace subscriber did not receive message")
	}

	select {
	case msg := <-globalSub.mailbox:
		assert.Equal(t, `{"hello":"world"}`, string(msg))
	default:
		t.Fatal("global subscriber did not receive message fanned out from namespace publish")
	}

	select {
	case <-otherSub.mailbox:
		t.Fatal("unrelated namespace subscriber should not receive message")
	default:
	}
}

func TestSSEHubMailboxBoundedDropsOnFull(t *testing.T) {
	hub := newSSEHub()
	sub, cancel := hub.subscribe("weather")
	defer cancel()

	for i := 0; i < sseMailboxSize+10; i++ {
		hub.publish("weather", []byte("x"))
	}
	assert.LessOrEqual(t, len(sub.mailbox), sseMailboxSize)
}

func TestSSEHubUnsubscribeStopsDelivery(t *testing.T) {
	hub := newSSEHub()
	sub, cancel := hub.subscribe("weather")
	cancel()
	hub.publish("weather", []byte("x"))
	select {
	case <-sub.mailbox:
		t.Fatal("cancelled subscriber should not receive further messages")
	default:
	}
}
