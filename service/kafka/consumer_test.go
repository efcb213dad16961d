package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/Shopify/sarama"
)

type fakeSession struct {
	marked []int64 // 已提交的 offset
}

func (s *fakeSession) Claims() map[string][]int32               { return nil }
func (s *fakeSession) MemberID() string                         { return "test-member" }
func (s *fakeSession) GenerationID() int32                      { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeSession) Commit()                                  {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context                 { return context.Background() }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "group_event" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func msgAt(offset int64) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{Topic: "group_event", Offset: offset, Value: []byte("{}")}
}

func TestConsumeClaimMarksOnSuccess(t *testing.T) {
	RegisterHandler("group_event", func(string, []byte, []byte) error { return nil })

	claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 2)}
	claim.msgs <- msgAt(10)
	claim.msgs <- msgAt(11)
	close(claim.msgs)

	session := &fakeSession{}
	if err := (&ConsumerGroupHandler{}).ConsumeClaim(session, claim); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(session.marked) != 2 || session.marked[1] != 11 {
		t.Fatalf("marked = %v", session.marked)
	}
}

// 处理失败的消息不能提交 offset，否则重算事件被吞掉无法重放
func TestConsumeClaimDoesNotMarkOnHandlerError(t *testing.T) {
	calls := 0
	RegisterHandler("group_event", func(string, []byte, []byte) error {
		calls++
		if calls == 2 {
			return errors.New("mongo down")
		}
		return nil
	})

	claim := &fakeClaim{msgs: make(chan *sarama.ConsumerMessage, 3)}
	claim.msgs <- msgAt(10)
	claim.msgs <- msgAt(11) // 这条失败
	claim.msgs <- msgAt(12)
	close(claim.msgs)

	session := &fakeSession{}
	err := (&ConsumerGroupHandler{}).ConsumeClaim(session, claim)
	if err == nil {
		t.Fatal("handler error must abort the claim")
	}
	if len(session.marked) != 1 || session.marked[0] != 10 {
		t.Fatalf("marked = %v, want only offset 10", session.marked)
	}
}
