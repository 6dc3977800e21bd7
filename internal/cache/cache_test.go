package cache

import (
	"sync"
	"testing"
	"time"

	"solwatch/internal/chain"
)

func snap(slot uint64) *chain.Snapshot {
	return &chain.Snapshot{
		FetchedAt:  time.Now().UTC(),
		SlotHeight: slot,
		Balances:   map[string]uint64{"wallet": slot * 10},
	}
}

func TestEmptyCacheReadsNil(t *testing.T) {
	c := New()
	if c.Read() != nil {
		t.Fatal("empty cache must read nil")
	}
}

func TestUpdateReplacesSnapshot(t *testing.T) {
	c := New()
	s1 := snap(1)
	s2 := snap(2)

	c.Update(s1)
	if got := c.Read(); got != s1 {
		t.Fatalf("read = %v, want s1", got)
	}

	c.Update(s2)
	if got := c.Read(); got != s2 {
		t.Fatalf("read = %v, want s2", got)
	}
}

// Readers must always observe a complete snapshot: the pointer they get is
// either the old or the new one, never a mix.
func TestConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	c := New()
	c.Update(snap(1))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := c.Read()
				if got == nil {
					t.Error("cache became empty after first update")
					return
				}
				if got.Balances["wallet"] != got.SlotHeight*10 {
					t.Errorf("torn snapshot: slot %d balance %d", got.SlotHeight, got.Balances["wallet"])
					return
				}
			}
		}()
	}

	for slot := uint64(2); slot < 200; slot++ {
		c.Update(snap(slot))
	}
	close(stop)
	wg.Wait()
}
