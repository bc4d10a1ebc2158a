package poll

import (
	"os"
	"testing"
	"time"

	"github.com/steploop/steploop/sys"
)

func newTestPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := New()
	if err != nil {
		t.Fatalf("poller construction failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestTimerStopsStart(t *testing.T) {
	p := newTestPoller(t)

	var fired bool
	if _, err := p.AddTimer(20*time.Millisecond, func() {
		fired = true
		p.Stop()
	}); err != nil {
		t.Fatal(err)
	}

	began := time.Now()
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if !fired {
		t.Error("timer callback did not run")
	}
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Errorf("start returned after %v, want roughly the 20ms delay", elapsed)
	}
}

func TestRemoveTimerPreventsFiring(t *testing.T) {
	p := newTestPoller(t)

	var removedFired bool
	tok, err := p.AddTimer(10*time.Millisecond, func() { removedFired = true })
	if err != nil {
		t.Fatal(err)
	}
	if _, err = p.AddTimer(50*time.Millisecond, p.Stop); err != nil {
		t.Fatal(err)
	}

	if !p.RemoveTimer(tok) {
		t.Fatal("remove of a live timer failed")
	}
	if p.RemoveTimer(tok) {
		t.Error("second remove of the same token succeeded")
	}
	if err = p.Start(); err != nil {
		t.Fatal(err)
	}
	if removedFired {
		t.Error("removed timer still fired")
	}
}

func TestReadEventDispatch(t *testing.T) {
	p := newTestPoller(t)

	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()

	rfd := int(pr.Fd())
	var got []byte
	err = p.AddFd(rfd, sys.EventRead, func(fd int, events uint32) {
		buf := make([]byte, 16)
		n, _ := pr.Read(buf)
		got = buf[:n]
		p.Stop()
	})
	if err != nil {
		t.Fatal(err)
	}
	defer p.RemoveFd(rfd)

	if _, err = pw.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err = p.AddTimer(time.Second, p.Stop); err != nil {
		t.Fatal(err)
	}
	if err = p.Start(); err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("callback read %q, want %q", got, "hello")
	}
}

func TestAddTaskWakesBlockedLoop(t *testing.T) {
	p := newTestPoller(t)

	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		err := p.AddTask(func(arg TaskArg) error {
			close(done)
			p.Stop()
			return nil
		}, nil)
		if err != nil {
			t.Errorf("task post failed: %v", err)
		}
	}()

	if _, err := p.AddTimer(2*time.Second, p.Stop); err != nil {
		t.Fatal(err)
	}
	began := time.Now()
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	default:
		t.Fatal("posted task never ran")
	}
	if elapsed := time.Since(began); elapsed > time.Second {
		t.Errorf("loop woke after %v, want well under the 2s timer", elapsed)
	}
}

func TestPriorTasksRunFirst(t *testing.T) {
	p := newTestPoller(t)

	var order []string
	if err := p.AddTask(func(arg TaskArg) error {
		order = append(order, "normal")
		p.Stop()
		return nil
	}, nil); err != nil {
		t.Fatal(err)
	}
	if err := p.AddPriorTask(func(arg TaskArg) error {
		order = append(order, "prior")
		return nil
	}, nil); err != nil {
		t.Fatal(err)
	}

	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "prior" || order[1] != "normal" {
		t.Errorf("task order = %v, want [prior normal]", order)
	}
}
