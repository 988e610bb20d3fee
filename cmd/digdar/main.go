// Command digdar runs the radar pulse acquisition daemon: it digitizes
// the video channel against the trigger, ACP and ARP lines, buffers
// captured pulses in a ring, and streams them in chunks to stdout, a
// TCP peer, or a sqlite capture database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lingx107/digdar/api"
	"github.com/lingx107/digdar/internal/adc"
	"github.com/lingx107/digdar/internal/capture"
	"github.com/lingx107/digdar/internal/config"
	"github.com/lingx107/digdar/internal/consumer"
	"github.com/lingx107/digdar/internal/digitizer"
	"github.com/lingx107/digdar/internal/monitor"
	"github.com/lingx107/digdar/internal/pulse"
	"github.com/lingx107/digdar/internal/reader"
	"github.com/lingx107/digdar/internal/sector"
	"github.com/lingx107/digdar/internal/sink"
	"github.com/lingx107/digdar/internal/trigger"
	"github.com/lingx107/digdar/internal/version"
)

var (
	dbFile      = flag.String("dbfile", "", "Capture to this sqlite database instead of writing to stdout or TCP")
	tcpAddr     = flag.String("tcp", "", "Write the pulse stream to a TCP connection at HOST:PORT instead of stdout")
	decim       = flag.Int("decim", 1, "Decimation rate: one of 1, 2, 3, 4, 8, 64, 1024, 8192, or 65536")
	useSum      = flag.Bool("sum", false, "Return the 16-bit sum of samples in each decimation period instead of the truncated average (decim <= 4 only)")
	samples     = flag.Int("samples", 3000, "Samples per pulse (up to 16384)")
	pulses      = flag.Int("pulses", 1000, "Number of pulses the ring buffer holds")
	chunkSize   = flag.Int("chunk", 10, "Number of pulses to transfer in each chunk")
	tuningPath  = flag.String("tuning", "", "JSON tuning file overriding trigger thresholds and capture params")
	httpAddr    = flag.String("http", "", "Serve acquisition stats over HTTP at this address (e.g. :8091)")
	logInterval = flag.Duration("log-interval", 10*time.Second, "Statistics logging interval")
	waitTimeout = flag.Duration("timeout", 0, "Wait per pulse before counting a timeout (0 = wait forever)")
	seed        = flag.Int64("seed", 0, "Synthetic source random seed (0 = time-based)")
	synthPRF    = flag.Float64("synth-prf", 1800, "Synthetic source trigger rate (Hz)")
	synthRPM    = flag.Float64("synth-rpm", 28, "Synthetic source antenna rotation (RPM)")
	synthACP    = flag.Int("synth-acp", 450, "Synthetic source angular ticks per revolution")
	debugLog    = flag.Bool("debug", false, "Enable digitizer diagnostic logging on stderr")
	showVersion = flag.Bool("version", false, "Print version info")

	trigExcite  = flag.Int("trig-excite", 3000, "Trigger excitation threshold")
	trigRelax   = flag.Int("trig-relax", 500, "Trigger relaxation threshold")
	trigLatency = flag.Int("trig-latency", 0, "Ticks to suppress trigger excitation after firing")
	trigDelay   = flag.Int("trig-delay", 0, "Ticks to delay the trigger event after excitation")
	trigBypass  = flag.Bool("trig-bypass", false, "Bypass the trigger smoothing filter")
	acpExcite   = flag.Int("acp-excite", 3000, "ACP excitation threshold")
	acpRelax    = flag.Int("acp-relax", 500, "ACP relaxation threshold")
	acpLatency  = flag.Int("acp-latency", 0, "Ticks to suppress ACP excitation after firing")
	arpExcite   = flag.Int("arp-excite", 3000, "ARP excitation threshold")
	arpRelax    = flag.Int("arp-relax", 500, "ARP relaxation threshold")
	arpLatency  = flag.Int("arp-latency", 0, "Ticks to suppress ARP excitation after firing")
)

func main() {
	var removals []sector.Interval
	flag.Func("remove", "Remove sector START:END, both in [0,1] of a revolution; may be repeated", func(s string) error {
		iv, err := sector.ParseInterval(s)
		if err != nil {
			return err
		}
		removals = append(removals, iv)
		return nil
	})
	flag.Parse()

	if *showVersion {
		fmt.Printf("digdar %s\n", version.String())
		return
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		t, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
		tuning = t
	}

	// Explicit flags win over tuning-file values.
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	intOr := func(name string, explicit, tuned int) int {
		if setFlags[name] {
			return explicit
		}
		return tuned
	}
	boolOr := func(name string, explicit, tuned bool) bool {
		if setFlags[name] {
			return explicit
		}
		return tuned
	}
	dec := intOr("decim", *decim, tuning.GetDecim())
	ns := intOr("samples", *samples, tuning.GetSamples())

	filter, err := sector.New(removals)
	if err != nil {
		log.Fatalf("invalid sector removal: %v", err)
	}

	if *debugLog {
		digitizer.SetLogWriters(os.Stderr, os.Stderr, nil)
	} else {
		digitizer.SetLogWriters(os.Stderr, nil, nil)
	}

	src := adc.NewSynthetic()
	if *synthPRF > 0 {
		src.TrigPeriodTicks = int(float64(adc.TickHz) / *synthPRF)
	}
	if *synthRPM > 0 {
		src.TicksPerRev = int(60 * float64(adc.TickHz) / *synthRPM)
	}
	if *synthACP > 0 {
		src.ACPPeriodTicks = src.TicksPerRev / *synthACP
	}
	if *seed != 0 {
		src.Reseed(*seed)
	}

	stats := monitor.NewPulseStats()

	dig, err := digitizer.New(digitizer.Config{
		Trig: trigger.Config{
			Excite:  adc.Sample(intOr("trig-excite", *trigExcite, tuning.GetTrigExcite())),
			Relax:   adc.Sample(intOr("trig-relax", *trigRelax, tuning.GetTrigRelax())),
			Latency: intOr("trig-latency", *trigLatency, tuning.GetTrigLatency()),
			Delay:   intOr("trig-delay", *trigDelay, tuning.GetTrigDelay()),
			Bypass:  boolOr("trig-bypass", *trigBypass, tuning.GetTrigBypassFilter()),
			Enabled: true,
		},
		ACP: trigger.Config{
			Excite:  adc.Sample(intOr("acp-excite", *acpExcite, tuning.GetACPExcite())),
			Relax:   adc.Sample(intOr("acp-relax", *acpRelax, tuning.GetACPRelax())),
			Latency: intOr("acp-latency", *acpLatency, tuning.GetACPLatency()),
			Enabled: true,
		},
		ARP: trigger.Config{
			Excite:  adc.Sample(intOr("arp-excite", *arpExcite, tuning.GetARPExcite())),
			Relax:   adc.Sample(intOr("arp-relax", *arpRelax, tuning.GetARPRelax())),
			Latency: intOr("arp-latency", *arpLatency, tuning.GetARPLatency()),
			Enabled: true,
		},
		Capture: capture.Config{
			NS:      ns,
			Rate:    dec,
			Average: !*useSum,
			Sum:     *useSum,
			Source:  capture.SourceTrig,
		},
		Source: src,
		Stats:  stats,
	})
	if err != nil {
		log.Fatalf("invalid capture config: %v", err)
	}

	ring := pulse.NewRing(*pulses)

	var out sink.Sink
	switch {
	case *dbFile != "":
		dbCfg := sink.DefaultCaptureDBConfig(*dbFile, dec, ns)
		dbCfg.Stats = stats
		cdb, err := sink.NewCaptureDB(dbCfg)
		if err != nil {
			log.Fatalf("failed to open capture database: %v", err)
		}
		log.Printf("capturing to %s (run %s)", *dbFile, cdb.RunID())
		out = cdb
	case *tcpAddr != "":
		raw, err := sink.DialRaw(*tcpAddr, pulse.NewStreamHeader(dec, ns), stats)
		if err != nil {
			log.Fatalf("failed to connect to %s: %v", *tcpAddr, err)
		}
		log.Printf("streaming pulses to %s", *tcpAddr)
		out = raw
	default:
		raw, err := sink.NewRaw(os.Stdout, pulse.NewStreamHeader(dec, ns), stats)
		if err != nil {
			log.Fatalf("failed to open stdout sink: %v", err)
		}
		out = raw
	}

	rd := reader.New(dig, ring, reader.Config{
		NS:      ns,
		Timeout: *waitTimeout,
		Stats:   stats,
	})

	cons := consumer.New(ring, out, consumer.Config{
		ChunkSize: *chunkSize,
		Filter:    filter,
		Stats:     stats,
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Digitizer routine: models the acquisition engine stepping the tick
	// stream. Source exhaustion or failure winds the whole pipeline down.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := dig.Run(ctx); err != nil {
			log.Printf("digitizer error: %v", err)
		}
		stop()
		log.Print("digitizer routine terminated")
	}()

	// Reader routine: waits for fired captures and publishes them to the
	// ring.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rd.Run(ctx); err != nil {
			log.Printf("reader error: %v", err)
		}
		log.Print("reader routine terminated")
	}()

	// Consumer routine: drains chunks to the sink. Sink errors are fatal.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cons.Run(ctx); err != nil {
			log.Printf("consumer error: %v", err)
			stop()
		}
		log.Print("consumer routine terminated")
	}()

	// Stats ticker
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(*logInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				stats.LogStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	// HTTP server goroutine
	if *httpAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			server := &http.Server{
				Addr:    *httpAddr,
				Handler: api.NewServer(stats).ServeMux(),
			}

			// Start server in a goroutine so it doesn't block
			go func() {
				log.Printf("serving stats on %s", *httpAddr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
			log.Printf("HTTP server routine stopped")
		}()
	}

	wg.Wait()

	if err := out.Close(); err != nil {
		log.Printf("failed to close sink: %v", err)
	}
	stats.LogStats()
	log.Printf("Graceful shutdown complete")
}
