package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(h *Hub, who model.Identity) *Client {
	c := NewClient(h, nil, who)
	h.addClient(c)
	return c
}

func receive(t *testing.T, c *Client) model.WSEvent {
	t.Helper()
	select {
	case data := <-c.send:
		var event model.WSEvent
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	default:
		t.Fatal("no event queued")
		return model.WSEvent{}
	}
}

func TestHub_LocalDeliveryByUserRef(t *testing.T) {
	h := NewHub(nil)
	student := newTestClient(h, model.Identity{UserID: 1, UserType: model.UserTypeStudent})
	studentTab := newTestClient(h, model.Identity{UserID: 1, UserType: model.UserTypeStudent})
	// Same id, other directory
	teacher := newTestClient(h, model.Identity{UserID: 1, UserType: model.UserTypeTeacher})

	h.SendToUser(model.UserRef{UserID: 1, UserType: model.UserTypeStudent}, &model.WSEvent{Type: model.WSEventNewMessage})

	assert.Equal(t, model.WSEventNewMessage, receive(t, student).Type)
	assert.Equal(t, model.WSEventNewMessage, receive(t, studentTab).Type)
	assert.Empty(t, teacher.send)
}

func TestHub_RemoveClient(t *testing.T) {
	h := NewHub(nil)
	who := model.Identity{UserID: 2, UserType: model.UserTypeParent}
	c := newTestClient(h, who)
	require.True(t, h.IsUserOnline(who.Ref()))

	h.removeClient(c)
	// A second removal must not close the channel twice
	h.removeClient(c)

	assert.False(t, h.IsUserOnline(who.Ref()))
	_, open := <-c.send
	assert.False(t, open)

	// Sending to a removed client is dropped
	c.Send(&model.WSEvent{Type: model.WSEventError})
}

func TestClient_SendOnlyToItself(t *testing.T) {
	h := NewHub(nil)
	who := model.Identity{UserID: 3, UserType: model.UserTypeStaff}
	first := newTestClient(h, who)
	second := newTestClient(h, who)

	first.Send(&model.WSEvent{Type: model.WSEventError, Payload: "bad"})

	assert.Equal(t, model.WSEventError, receive(t, first).Type)
	assert.Empty(t, second.send)
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := NewClient(h, nil, model.Identity{UserID: 4, UserType: model.UserTypeParent})
	returned := make(chan struct{})
	go func() {
		h.Register(c)
		h.Unregister(c)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("register/unregister blocked after the hub stopped")
	}
}

func TestHub_FullBufferDropsClient(t *testing.T) {
	h := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	who := model.Identity{UserID: 5, UserType: model.UserTypeStudent}
	c := newTestClient(h, who)
	for i := 0; i < cap(c.send); i++ {
		c.send <- []byte("{}")
	}

	h.SendToUser(who.Ref(), &model.WSEvent{Type: model.WSEventNewMessage})

	assert.Eventually(t, func() bool { return !h.IsUserOnline(who.Ref()) }, time.Second, 5*time.Millisecond)
}
