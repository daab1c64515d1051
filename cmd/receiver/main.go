package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zhufengGNSS/SDGPSR/core"
	"github.com/zhufengGNSS/SDGPSR/internal/iqfile"
	"github.com/zhufengGNSS/SDGPSR/internal/logging"
	"github.com/zhufengGNSS/SDGPSR/internal/observability"
	"github.com/zhufengGNSS/SDGPSR/internal/replay"
	"github.com/zhufengGNSS/SDGPSR/model"
)

func main() {
	file := flag.String("file", "", "IQ capture file (interleaved I/Q)")
	format := flag.String("format", "int8", "sample format: int8, int16, float32")
	fs := flag.Float64("fs", 2.048e6, "sample rate in Hz")
	clockOffset := flag.Float64("clock-offset", 0, "hardware clock offset in Hz")
	realtime := flag.Bool("realtime", false, "replay at live 1 ms cadence instead of as fast as possible")
	prnList := flag.String("prns", "", "comma-separated PRNs to search (default 1-32)")
	almanacPath := flag.String("almanac", "", "JSON almanac of PRN TLEs for visibility prediction and coarse orbits")
	minSV := flag.Int("min-sv", 4, "full-track channels required before a navigation solve")
	metricsAddr := flag.String("metrics-addr", "", "address for the Prometheus /metrics endpoint (empty disables)")
	statusEvery := flag.Duration("status-every", 5*time.Second, "interval between tracking status reports")

	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: receiver -file capture.iq [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "tracing init failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	var collector *observability.ReceiverCollector
	if *metricsAddr != "" {
		collector, err = observability.NewReceiverCollector(nil)
		if err != nil {
			log.Error(ctx, "metrics init failed", logging.String("error", err.Error()))
			os.Exit(1)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Error(ctx, "metrics server failed", logging.String("error", err.Error()))
			}
		}()
		log.Info(ctx, "metrics endpoint up", logging.String("addr", *metricsAddr))
	}

	opts := []core.Option{
		core.WithLogger(log),
		core.WithMetrics(collector),
		core.WithMinChannelsForSolve(*minSV),
	}

	prns, err := parsePRNs(*prnList)
	if err != nil {
		log.Error(ctx, "bad -prns", logging.String("error", err.Error()))
		os.Exit(2)
	}

	if *almanacPath != "" {
		predictor, err := loadAlmanac(*almanacPath)
		if err != nil {
			log.Error(ctx, "almanac load failed", logging.String("error", err.Error()))
			os.Exit(1)
		}
		if len(prns) == 0 {
			// The observer is unknown before the first fix, so predict
			// visibility from a nominal equatorial surface point with a
			// wide-open elevation mask. This still halves the search list
			// by excluding satellites on the far side of the Earth.
			observer := core.LLAToECEF(model.LLA{})
			prns = predictor.VisiblePRNs(time.Now().UTC(), observer, -30)
			log.Info(ctx, "visibility-ordered search list", logging.Any("prns", prns))
		}
		opts = append(opts, core.WithTrackerFactory(
			core.NewLoopTrackerFactory(predictor, core.WithInitialTimeOfWeek(gpsTimeOfWeek(time.Now().UTC()))),
		))
	}
	if len(prns) > 0 {
		opts = append(opts, core.WithTargetPRNs(prns))
	}

	sampleFormat, err := iqfile.ParseFormat(*format)
	if err != nil {
		log.Error(ctx, "bad -format", logging.String("error", err.Error()))
		os.Exit(2)
	}
	source, err := iqfile.Open(*file, *fs, sampleFormat)
	if err != nil {
		log.Error(ctx, "capture open failed", logging.String("error", err.Error()))
		os.Exit(1)
	}
	defer source.Close()

	receiver := core.NewReceiver(*fs, *clockOffset, opts...)
	defer receiver.Close()

	mode := replay.Accelerated
	if *realtime {
		mode = replay.RealTime
	}
	feeder := &replay.Feeder{Mode: mode}
	feedDone := feeder.Start(source, receiver.BasebandSignal)

	log.Info(ctx, "replay started",
		logging.String("file", *file),
		logging.Any("sample_rate_hz", *fs),
		logging.Any("realtime", *realtime),
	)

	ticker := time.NewTicker(*statusEvery)
	defer ticker.Stop()

	for {
		select {
		case err := <-feedDone:
			if err != nil {
				log.Error(ctx, "replay failed", logging.String("error", err.Error()))
				os.Exit(1)
			}
			waitForDrain(receiver)
			report(receiver)
			return
		case <-ticker.C:
			report(receiver)
		}
	}
}

// waitForDrain blocks until the receiver has consumed every queued packet.
func waitForDrain(r *core.Receiver) {
	for !r.Synced() {
		time.Sleep(10 * time.Millisecond)
	}
}

func report(r *core.Receiver) {
	status := r.TrackingStatus()
	fmt.Printf("tracking %d satellites:", len(status))
	for _, s := range status {
		fmt.Printf(" G%02d=%s", s.PRN, s.State)
	}
	fmt.Println()

	if r.NavSolution() {
		lla := r.PositionLLA()
		fmt.Printf("position: lat=%.6f lon=%.6f alt=%.1fm tow=%.3fs\n",
			lla.LatDeg, lla.LonDeg, lla.AltM, r.TimeOfWeek())
	}
}

func parsePRNs(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var prns []int
	for _, part := range strings.Split(s, ",") {
		prn, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("PRN %q: %w", part, err)
		}
		prns = append(prns, prn)
	}
	return prns, nil
}

func loadAlmanac(path string) (*core.VisibilityPredictor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []core.AlmanacEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return core.NewVisibilityPredictor(entries, gpsWeekEpoch(time.Now().UTC())), nil
}

// gpsWeekEpoch returns the UTC start of the GPS week containing t. GPS weeks
// roll over at midnight between Saturday and Sunday.
func gpsWeekEpoch(t time.Time) time.Time {
	t = t.UTC()
	daysIntoWeek := int(t.Weekday()) // Sunday == 0
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -daysIntoWeek)
}

func gpsTimeOfWeek(t time.Time) float64 {
	return t.Sub(gpsWeekEpoch(t)).Seconds()
}
