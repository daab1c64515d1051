package replay

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// sliceSource replays canned packets and then reports a terminal error.
type sliceSource struct {
	packets  []model.SamplePacket
	terminal error
}

func (s *sliceSource) NextPacket() (model.SamplePacket, error) {
	if len(s.packets) == 0 {
		return nil, s.terminal
	}
	p := s.packets[0]
	s.packets = s.packets[1:]
	return p, nil
}

func cannedPackets(n int) []model.SamplePacket {
	packets := make([]model.SamplePacket, n)
	for i := range packets {
		packets[i] = model.SamplePacket{complex(float64(i), 0)}
	}
	return packets
}

func TestFeederAcceleratedDeliversAll(t *testing.T) {
	src := &sliceSource{packets: cannedPackets(25), terminal: io.EOF}

	var got []float64
	f := &Feeder{Mode: Accelerated}
	done := f.Start(src, func(p model.SamplePacket) {
		got = append(got, real(p[0]))
	})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("terminal error = %v, want nil after io.EOF", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feeder did not finish")
	}

	if len(got) != 25 {
		t.Fatalf("delivered %d packets, want 25", len(got))
	}
	for i, v := range got {
		if v != float64(i) {
			t.Fatalf("packet %d carried tag %v, want %d", i, v, i)
		}
	}
}

func TestFeederChannelClosesAfterTerminal(t *testing.T) {
	src := &sliceSource{terminal: io.EOF}
	f := &Feeder{Mode: Accelerated}
	done := f.Start(src, func(model.SamplePacket) {})

	if err, ok := <-done; !ok || err != nil {
		t.Fatalf("first receive = (%v, %v), want (nil, true)", err, ok)
	}
	if _, ok := <-done; ok {
		t.Fatal("channel should be closed after the terminal send")
	}
}

func TestFeederPropagatesSourceError(t *testing.T) {
	wantErr := errors.New("device unplugged")
	src := &sliceSource{packets: cannedPackets(3), terminal: wantErr}
	f := &Feeder{Mode: Accelerated}

	delivered := 0
	done := f.Start(src, func(model.SamplePacket) { delivered++ })

	select {
	case err := <-done:
		if !errors.Is(err, wantErr) {
			t.Fatalf("terminal error = %v, want %v", err, wantErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("feeder did not finish")
	}
	if delivered != 3 {
		t.Errorf("delivered %d packets before the error, want 3", delivered)
	}
}

func TestFeederRealTimePaces(t *testing.T) {
	src := &sliceSource{packets: cannedPackets(5), terminal: io.EOF}
	f := &Feeder{Mode: RealTime, Interval: 10 * time.Millisecond}

	start := time.Now()
	done := f.Start(src, func(model.SamplePacket) {})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("feeder did not finish")
	}

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("5 paced packets took %v, want at least 40ms", elapsed)
	}
}
