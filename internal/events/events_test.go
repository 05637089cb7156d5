package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestDispatcher(t *testing.T) {
	t.Run("Should call typed then catch-all handlers and join their errors", func(t *testing.T) {
		d := NewInMemoryDispatcher()
		var calls []string
		d.Subscribe(EventMemberApproved, func(context.Context, Event) error {
			calls = append(calls, "typed")
			return errors.New("typed failed")
		})
		d.Subscribe(EventMemberDeleted, func(context.Context, Event) error {
			calls = append(calls, "other")
			return nil
		})
		d.SubscribeAll(func(context.Context, Event) error {
			calls = append(calls, "all")
			return nil
		})

		err := d.Publish(t.Context(), NewEvent(EventMemberApproved, "actor", "m1", nil))
		assert.EqualError(t, err, "typed failed")
		assert.Equal(t, []string{"typed", "all"}, calls)
	})
	t.Run("Should succeed with no handlers", func(t *testing.T) {
		assert.NoError(t, NewInMemoryDispatcher().Publish(t.Context(), NewEvent(EventReportDeleted, "", "r1", nil)))
	})
}

func TestKafkaSink(t *testing.T) {
	t.Run("Should key messages by subject and carry the event type", func(t *testing.T) {
		fw := &fakeWriter{}
		sink := NewKafkaSinkWithWriter(fw)
		evt := NewEvent(EventMemberRegistered, "", "m1", MemberRegisteredPayload{Name: "Sari", Bootstrap: true})
		require.NoError(t, sink.Handle(t.Context(), evt))
		require.Len(t, fw.msgs, 1)
		assert.Equal(t, []byte("m1"), fw.msgs[0].Key)
		assert.Equal(t, "event_type", fw.msgs[0].Headers[0].Key)
		assert.Equal(t, []byte("member_registered"), fw.msgs[0].Headers[0].Value)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &decoded))
		assert.Equal(t, "member_registered", decoded["type"])
		assert.Equal(t, true, decoded["payload"].(map[string]any)["bootstrap"])
	})
	t.Run("Should wrap writer failures", func(t *testing.T) {
		boom := errors.New("broker down")
		sink := NewKafkaSinkWithWriter(&fakeWriter{err: boom})
		err := sink.Handle(t.Context(), NewEvent(EventMemberDeleted, "a", "m1", nil))
		assert.ErrorIs(t, err, boom)
	})
}
