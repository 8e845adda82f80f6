package broker

import (
	"reflect"
	"testing"
)

func TestPublishOrderAndKinds(t *testing.T) {
	b := New(nil)
	var got []string
	record := func(name string) SubscriberFunc {
		return func(msg *Message) { got = append(got, name+":"+msg.Kind) }
	}
	b.Subscribe("users", []string{Wildcard}, record("all"))
	b.Subscribe("users", []string{"upsert"}, record("writes"))
	b.Subscribe("orders", []string{Wildcard}, record("other"))

	if n := b.Publish(&Message{Topic: "users", Kind: "upsert"}); n != 2 {
		t.Errorf("Publish delivered to %d subscribers, want 2", n)
	}
	if n := b.Publish(&Message{Topic: "users", Kind: "select"}); n != 1 {
		t.Errorf("Publish delivered to %d subscribers, want 1", n)
	}
	want := []string{"all:upsert", "writes:upsert", "all:select"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("deliveries = %v, want %v", got, want)
	}
	if b.Publish(nil) != 0 {
		t.Error("Publish(nil) delivered")
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New(nil)
	calls := 0
	s := b.Subscribe("t", []string{Wildcard}, SubscriberFunc(func(*Message) { calls++ }))
	if s.Topic() != "t" || b.SubscriberCount("t") != 1 {
		t.Fatalf("unexpected registration state")
	}
	if !b.Unsubscribe(s) {
		t.Fatal("Unsubscribe returned false")
	}
	if b.Unsubscribe(s) {
		t.Error("second Unsubscribe returned true")
	}
	if b.Unsubscribe(nil) {
		t.Error("Unsubscribe(nil) returned true")
	}
	b.Publish(&Message{Topic: "t", Kind: "x"})
	if calls != 0 {
		t.Errorf("removed subscriber called %d times", calls)
	}
	if len(b.ListTopics()) != 0 {
		t.Errorf("topics = %v, want none", b.ListTopics())
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	b := New(nil)
	var second *Subscription
	seen := 0
	b.Subscribe("t", []string{Wildcard}, SubscriberFunc(func(*Message) { b.Unsubscribe(second) }))
	second = b.Subscribe("t", []string{Wildcard}, SubscriberFunc(func(*Message) { seen++ }))

	// the in-flight publish still reaches the subscriber it started with
	b.Publish(&Message{Topic: "t"})
	b.Publish(&Message{Topic: "t"})
	if seen != 1 {
		t.Errorf("second subscriber saw %d messages, want 1", seen)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	var recovered []any
	b := New(func(msg *Message, r any) { recovered = append(recovered, r) })
	after := false
	b.Subscribe("t", []string{Wildcard}, SubscriberFunc(func(*Message) { panic("boom") }))
	b.Subscribe("t", []string{Wildcard}, SubscriberFunc(func(*Message) { after = true }))

	b.Publish(&Message{Topic: "t", Kind: "k"})
	if !after {
		t.Error("subscriber after the panicking one was not called")
	}
	if len(recovered) != 1 || recovered[0] != "boom" {
		t.Errorf("recovered = %v", recovered)
	}
	if got := b.ListTopics(); !reflect.DeepEqual(got, []string{"t"}) {
		t.Errorf("ListTopics = %v", got)
	}
}
