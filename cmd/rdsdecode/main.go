// rdsdecode reads a stream of RDS groups from stdin - hex tuples and/or
// JSON records, interleaved arbitrarily - decodes them into a running
// station snapshot, and writes that snapshot to stdout as JSON each time
// the publisher's tick finds it's changed.
//
// When the application starts up it looks for a JSON config file named
// by -c or --config. The config settings control the daily event log
// location, the TMC local-file directory, and the publisher's tick rate.
//
//	{
//	    "event_log_directory": "rdsdecode-log",
//	    "tmc_local_directory": "/etc/rdsdecode/tmc-local",
//	    "publisher_tick_cron": "@every 1s"
//	}
//
// Grounded on the teacher's apps/rtcmfilter/main.go: a daily logger
// picked up at startup, a mandatory -c/--config flag, and a single
// blocking read loop over stdin feeding a processing pipeline.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/rds-radio/decoder/internal/clock"
	"github.com/rds-radio/decoder/internal/dailylog"
	"github.com/rds-radio/decoder/internal/ingest"
	"github.com/rds-radio/decoder/internal/publisher"
	"github.com/rds-radio/decoder/internal/station"
	"github.com/rds-radio/decoder/internal/tmcgroup"
	"github.com/rds-radio/decoder/rdsconfig"
	"github.com/rds-radio/decoder/tmc/resolver"
)

func main() {
	var configFileName string
	flag.StringVar(&configFileName, "c", "", "JSON config file")
	flag.StringVar(&configFileName, "config", "", "JSON config file")
	flag.Parse()

	if configFileName == "" {
		fmt.Fprintln(os.Stderr, "missing config file: -c or --config")
		os.Exit(1)
	}

	cfg, err := rdsconfig.GetConfigFromFile(configFileName, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := newSystemLogger(cfg)

	sysClock := clock.NewSystemClock()
	st := station.NewWithConfig(sysClock, cfg.BERWindowCap, cfg.BERGraceCount, cfg.PSHistoryCapacity, cfg.RTHistoryCapacity)

	pub, err := publisher.New(st, sysClock, cfg.PublisherTickCron, func(snap *publisher.Snapshot) {
		enc := json.NewEncoder(os.Stdout)
		if err := enc.Encode(snap); err != nil {
			logger.Printf("rdsdecode: writing snapshot: %v", err)
		}
	})
	if err != nil {
		logger.Fatalf("rdsdecode: starting publisher: %v", err)
	}
	pub.Start()
	defer pub.Stop()

	res := resolver.New(
		cfg.TMCLocalDirectory,
		cfg.OverpassEndpoints,
		cfg.ResolverBatchSize,
		time.Duration(cfg.ResolverMinBatchIntervalMS)*time.Millisecond,
		time.Duration(cfg.ResolverTimeoutMS)*time.Millisecond,
	)
	resolveCtx, cancelResolve := context.WithCancel(context.Background())
	defer cancelResolve()
	go resolveLocationsPeriodically(resolveCtx, st, pub, res, logger)

	HandleGroups(os.Stdin, st, pub, logger)
}

// resolveLocationsPeriodically polls the station's TMC engine for
// messages whose location hasn't been resolved yet and looks them up
// against res, the on-demand location resolver, marking pub dirty so a
// resolved location is reflected in the next snapshot.
func resolveLocationsPeriodically(ctx context.Context, st *station.Station, pub *publisher.Publisher, res *resolver.Resolver, logger *log.Logger) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resolveOnce(ctx, st, pub, res, logger)
		}
	}
}

func resolveOnce(ctx context.Context, st *station.Station, pub *publisher.Publisher, res *resolver.Resolver, logger *log.Logger) {
	if st.TMC == nil {
		return
	}
	tabcd, ok := st.TMC.LocationTableNumber()
	if !ok {
		return
	}
	codes := st.TMC.UnresolvedLocationCodes()
	if len(codes) == 0 {
		return
	}
	cid, ok := countryIDFromPI(st.PI)
	if !ok {
		return
	}

	locs, err := res.Resolve(ctx, codes, cid, tabcd)
	if err != nil {
		logger.Printf("rdsdecode: resolving TMC locations: %v", err)
		return
	}

	updates := make([]tmcgroup.LocationUpdate, 0, len(locs))
	for lcd, loc := range locs {
		updates = append(updates, tmcgroup.LocationUpdate{
			LocationCode:     lcd,
			Resolved:         loc.Status == resolver.Resolved,
			Name:             loc.Name,
			RoadRef:          loc.RoadRef,
			Lat:              loc.Lat,
			Lon:              loc.Lon,
			PrevLocationCode: loc.PrevLCD,
			NextLocationCode: loc.NextLCD,
		})
	}
	st.TMC.ApplyLocationUpdates(updates)
	pub.MarkDirty()
}

// countryIDFromPI derives the TMC country identity from an RDS PI code's
// top nibble, the country-code field per the RBDS PI structure.
func countryIDFromPI(pi string) (uint16, bool) {
	if len(pi) == 0 {
		return 0, false
	}
	v, err := strconv.ParseUint(pi[:1], 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(v), true
}

func newSystemLogger(cfg *rdsconfig.Config) *log.Logger {
	if cfg.EventLogDirectory == "" {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(dailylog.NewDailyLogger(cfg.EventLogDirectory), "", log.LstdFlags)
}

// HandleGroups reads chunks from r, feeds them to an Ingester wired
// against st, and dispatches every resulting event into st, marking pub
// dirty after each one. It runs until r returns EOF or a read error.
func HandleGroups(r io.Reader, st *station.Station, pub *publisher.Publisher, logger *log.Logger) {
	ing := ingest.New(st, st, logger)
	reader := bufio.NewReader(r)
	chunk := make([]byte, 4096)

	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			for _, ev := range ing.Feed(chunk[:n]) {
				switch ev.Kind {
				case ingest.EventGroup:
					st.Observe(ev.Group[0], ev.Group[1], ev.Group[2], ev.Group[3])
				case ingest.EventCorruption:
					// Already recorded against BER/analyzer by the ingester.
				}
				pub.MarkDirty()
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Printf("rdsdecode: reading input: %v", err)
			}
			return
		}
	}
}
