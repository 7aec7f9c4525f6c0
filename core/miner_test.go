package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"powledger/interfaces"
)

func TestMinerSubmitAppends(t *testing.T) {
	m := NewMiner(NewBlockchain(&Config{Clock: steppingClock(0)}), 4)
	m.Start()
	defer m.Stop()

	d := mustDifficulty(t, testDifficulty)
	for i := 0; i < 3; i++ {
		b, err := m.Submit(context.Background(), []byte(fmt.Sprintf("job %d", i)), d)
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if b.Index != uint64(i) {
			t.Fatalf("job %d appended at index %d", i, b.Index)
		}
	}

	m.View(func(bc *Blockchain) {
		if bc.Len() != 3 {
			t.Errorf("Len = %d, want 3", bc.Len())
		}
		if !bc.Verify() {
			t.Errorf("miner-built chain does not verify: %v", bc.Validate())
		}
	})
}

func TestMinerConcurrentSubmitsAreSerialized(t *testing.T) {
	m := NewMiner(NewBlockchain(&Config{Clock: steppingClock(0)}), 2)
	m.Start()
	defer m.Stop()

	d := mustDifficulty(t, testDifficulty)
	var wg sync.WaitGroup
	errCh := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.Submit(context.Background(), []byte{byte(i)}, d)
			errCh <- err
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatal(err)
		}
	}

	m.View(func(bc *Blockchain) {
		if bc.Len() != 6 || !bc.Verify() {
			t.Errorf("Len = %d, verify = %v", bc.Len(), bc.Verify())
		}
	})
}

func TestMinerStoppedRejectsSubmit(t *testing.T) {
	m := NewMiner(NewBlockchain(nil), 1)
	if m.IsRunning() {
		t.Fatal("new miner reports running")
	}
	if _, err := m.Submit(context.Background(), []byte("x"), mustDifficulty(t, testDifficulty)); !errors.Is(err, ErrMinerStopped) {
		t.Fatalf("Submit = %v, want ErrMinerStopped", err)
	}

	m.Start()
	m.Start() // idempotent
	if !m.IsRunning() {
		t.Fatal("miner not running after Start")
	}
	m.Stop()
	m.Stop()
	if m.IsRunning() {
		t.Fatal("miner running after Stop")
	}
	if _, err := m.Submit(context.Background(), []byte("x"), mustDifficulty(t, testDifficulty)); !errors.Is(err, ErrMinerStopped) {
		t.Fatalf("Submit after Stop = %v, want ErrMinerStopped", err)
	}
}

// blockingEngine never finds a solution; it returns only when cancelled.
type blockingEngine struct{}

func (blockingEngine) MineBlock(ctx context.Context, _ interfaces.BlockConsensusItf) error {
	<-ctx.Done()
	return ctx.Err()
}

func (blockingEngine) ValidateProofOfWork(interfaces.BlockConsensusItf) bool { return false }

func TestMinerSubmitHonoursContext(t *testing.T) {
	bc := NewBlockchain(&Config{Engine: blockingEngine{}})
	m := NewMiner(bc, 1)
	m.Start()
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := m.Submit(ctx, []byte("slow"), mustDifficulty(t, testDifficulty))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit = %v, want context.DeadlineExceeded", err)
	}
}

func TestMinerStopCancelsEngine(t *testing.T) {
	bc := NewBlockchain(&Config{Engine: blockingEngine{}})
	m := NewMiner(bc, 1)
	m.Start()

	d := mustDifficulty(t, testDifficulty)
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), []byte("x"), d)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Submit succeeded although mining was cancelled")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after Stop")
	}
	m.View(func(bc *Blockchain) {
		if bc.Len() != 0 {
			t.Errorf("cancelled job appended a block")
		}
	})
}

func viewWithin(t *testing.T, m *Miner, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		m.View(func(*Blockchain) {})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("View blocked while a block was being mined")
	}
}

func TestMinerSequentialSearchReleasesReaders(t *testing.T) {
	m := NewMiner(NewBlockchain(&Config{Clock: steppingClock(0)}), 1)
	m.Start()

	// Difficulty 1 needs a zero hash window, so the search never ends on its own.
	d := mustDifficulty(t, "1")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := m.Submit(ctx, []byte("hard"), d); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Submit = %v, want context.DeadlineExceeded", err)
	}

	viewWithin(t, m, time.Second)

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a sequential search")
	}
	m.View(func(bc *Blockchain) {
		if bc.Len() != 0 {
			t.Errorf("cancelled search appended a block, Len = %d", bc.Len())
		}
	})
}

func TestMinerViewWhileMining(t *testing.T) {
	m := NewMiner(NewBlockchain(&Config{Clock: steppingClock(0)}), 1)
	m.Start()

	d := mustDifficulty(t, "1")
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Submit(context.Background(), []byte("hard"), d)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	viewWithin(t, m, time.Second)

	m.Stop()
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("Submit succeeded although mining was stopped")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit did not return after Stop")
	}
}
