package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInOrder(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFake(start)

	var fired []string
	c.AfterFunc(2*time.Minute, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Minute, func() { fired = append(fired, "a") })
	stopped := c.AfterFunc(90*time.Second, func() { fired = append(fired, "x") })
	if !stopped.Stop() {
		t.Fatal("Stop on pending timer should return true")
	}

	c.Advance(time.Minute)
	if len(fired) != 1 || fired[0] != "a" {
		t.Fatalf("after 1m fired = %v, want [a]", fired)
	}

	c.Advance(5 * time.Minute)
	if len(fired) != 2 || fired[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", fired)
	}
	if got := c.Now(); !got.Equal(start.Add(6 * time.Minute)) {
		t.Errorf("Now = %v, want %v", got, start.Add(6*time.Minute))
	}
	if len(c.Pending()) != 0 {
		t.Errorf("Pending = %v, want none", c.Pending())
	}
}

func TestFakeTimerArmedFromCallback(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(10 * time.Second)
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}
