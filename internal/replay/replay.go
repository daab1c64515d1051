// Package replay paces a recorded sample stream into the receiver, either at
// the live 1 ms cadence or as fast as the source can be read.
package replay

import (
	"io"
	"time"

	"github.com/zhufengGNSS/SDGPSR/model"
)

// Mode describes how the Feeder advances through the capture.
type Mode int

const (
	// RealTime delivers one packet per millisecond of wall-clock time,
	// mimicking a live RF front end.
	RealTime Mode = iota
	// Accelerated delivers packets as quickly as the source yields them.
	Accelerated
)

// PacketSource yields consecutive 1 ms packets. io.EOF ends the replay
// cleanly; any other error aborts it.
type PacketSource interface {
	NextPacket() (model.SamplePacket, error)
}

// Feeder drives packets from a source into a sink on its own goroutine.
type Feeder struct {
	Mode     Mode
	Interval time.Duration // packet cadence in RealTime mode; defaults to 1 ms
}

// Start begins feeding and returns a channel that receives the terminal
// error (nil after a clean io.EOF) and is then closed.
func (f *Feeder) Start(source PacketSource, sink func(model.SamplePacket)) <-chan error {
	done := make(chan error, 1)
	interval := f.Interval
	if interval <= 0 {
		interval = time.Millisecond
	}

	go func() {
		var ticker *time.Ticker
		if f.Mode == RealTime {
			ticker = time.NewTicker(interval)
			defer ticker.Stop()
		}

		for {
			packet, err := source.NextPacket()
			if err != nil {
				if err == io.EOF {
					done <- nil
				} else {
					done <- err
				}
				close(done)
				return
			}
			if ticker != nil {
				<-ticker.C
			}
			sink(packet)
		}
	}()
	return done
}
