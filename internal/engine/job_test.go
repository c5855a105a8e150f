package engine

import (
	"sync"
	"testing"
	"time"
)

func TestCASStatus(t *testing.T) {
	j := &Job{status: StatusQueued}

	if !j.CASStatus(StatusQueued, StatusActive) {
		t.Fatal("Queued→Active should succeed")
	}
	if j.CASStatus(StatusQueued, StatusActive) {
		t.Error("second Queued→Active should fail")
	}
	if !j.CASStatus(StatusActive, StatusCompleted) {
		t.Fatal("Active→Completed should succeed")
	}
	if j.CASStatus(StatusActive, StatusFailed) {
		t.Error("transition out of a terminal state should fail")
	}
	if j.Status() != StatusCompleted {
		t.Errorf("status = %q, want completed", j.Status())
	}
}

func TestCASStatusSingleWinner(t *testing.T) {
	j := &Job{status: StatusQueued}

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if j.CASStatus(StatusQueued, StatusActive) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for range wins {
		n++
	}
	if n != 1 {
		t.Errorf("%d goroutines won the CAS, want exactly 1", n)
	}
}

func TestTerminal(t *testing.T) {
	for s, want := range map[Status]bool{
		StatusQueued:    false,
		StatusActive:    false,
		StatusCompleted: true,
		StatusFailed:    true,
	} {
		if s.Terminal() != want {
			t.Errorf("%q.Terminal() = %v, want %v", s, s.Terminal(), want)
		}
	}
}

func TestProgressNeverRegresses(t *testing.T) {
	j := &Job{status: StatusQueued, progress: progressCallStarted}
	j.setProgress(progressProbed)
	if got := j.snapshot().ProgressPercent; got != progressCallStarted {
		t.Errorf("progress = %d, want %d (must not move backwards)", got, progressCallStarted)
	}
}

func TestMarkStartedKeepsFirstStart(t *testing.T) {
	j := &Job{status: StatusActive}
	j.markStarted(1)
	first := j.snapshot().StartedAt
	time.Sleep(2 * time.Millisecond)
	j.markStarted(2)

	st := j.snapshot()
	if st.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", st.Attempts)
	}
	if !st.StartedAt.Equal(*first) {
		t.Error("StartedAt changed on a later attempt")
	}
}

func TestSnapshotCopiesResult(t *testing.T) {
	j := &Job{status: StatusCompleted}
	j.fail(ErrKindProvider, "boom")

	st := j.snapshot()
	if st.Error == nil || st.Error.Kind != ErrKindProvider || st.Error.Message != "boom" {
		t.Errorf("error = %+v, want provider/boom", st.Error)
	}
	if st.FinishedAt == nil {
		t.Error("FinishedAt not set after fail")
	}
}
