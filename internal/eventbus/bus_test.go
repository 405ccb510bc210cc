package eventbus

import "testing"

func TestPrefixFilterAndDrops(t *testing.T) {
	t.Parallel()

	b := New()
	all, unsubAll := b.Subscribe(1)
	tasks, unsubTasks := b.Subscribe(4, "task.")
	defer unsubTasks()

	b.Publish(Event{Type: "task.started"})
	b.Publish(Event{Type: "config.reloaded"})
	b.Publish(Event{Type: "task.finished"})

	if len(tasks) != 2 {
		t.Fatalf("task subscriber got %d events", len(tasks))
	}
	if len(all) != 1 {
		t.Fatalf("unfiltered subscriber should hold one buffered event, got %d", len(all))
	}
	if b.Dropped() != 2 {
		t.Fatalf("dropped=%d want 2", b.Dropped())
	}
	if e := <-tasks; e.Time.IsZero() {
		t.Fatalf("publish should stamp time")
	}

	unsubAll()
	unsubAll()
	b.Publish(Event{Type: "task.started"})
	if _, ok := <-all; !ok {
		return
	}
	if _, ok := <-all; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
}
