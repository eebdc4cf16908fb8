// Package publisher composes immutable snapshots of a station's decoded
// state on a timer, gated so that a snapshot is only recomposed when
// something has actually changed since the last one.
//
// Grounded on the teacher's rtcmlogger/log.Writer, which uses a
// robfig/cron job to run a periodic maintenance action (there, rolling
// the log at end of day; here, publishing on a fixed tick) alongside a
// mutex-guarded piece of mutable state written from another goroutine.
package publisher

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rds-radio/decoder/internal/af"
	"github.com/rds-radio/decoder/internal/clock"
	"github.com/rds-radio/decoder/internal/eon"
	"github.com/rds-radio/decoder/internal/group"
	"github.com/rds-radio/decoder/internal/oda"
	"github.com/rds-radio/decoder/internal/station"
	"github.com/rds-radio/decoder/internal/tmcgroup"
)

// Snapshot is a point-in-time, immutable copy of a station's state.
type Snapshot struct {
	PI  string
	TP  bool
	TA  bool
	PTY uint16

	PS     string
	RT     string
	PTYN   string
	LongPS string

	ECC     uint16
	HaveECC bool
	LIC     uint16
	HaveLIC bool
	PIN     group.PIN
	HavePIN bool

	UTCTime   time.Time
	LocalTime time.Time
	HaveCT    bool

	AFSet  []float64
	AFType af.MethodType

	BER float32

	TMCActive   bool
	TMCPaused   bool
	TMCMessages []tmcgroup.Message

	PSHistory []string
	RTHistory []string

	EONNetworks map[string]eon.NetworkInfo
	RTPlusTags  []oda.Tag

	AnalyzerActive bool
	GroupTotal     uint64
	GroupCounts    map[string]uint64
	RecentGroups   []station.RawGroupRecord

	GeneratedAt time.Time
}

// Publisher composes Snapshots from a Station on a cron-driven tick,
// skipping ticks where nothing changed, and immediately publishing a
// clean-slate snapshot the moment a PI change is observed so a consumer
// is never shown a blend of the outgoing and incoming station's fields.
type Publisher struct {
	mutex sync.Mutex

	st  *station.Station
	clk clock.Clock

	cronjob *cron.Cron
	dirty   bool
	lastPI  string
	latest  *Snapshot

	onPublish func(*Snapshot)
}

// New creates a Publisher over st, ticking per the cron spec tickSpec
// (e.g. "@every 1s"), invoking onPublish (which may be nil) each time a
// new snapshot is composed.
func New(st *station.Station, c clock.Clock, tickSpec string, onPublish func(*Snapshot)) (*Publisher, error) {
	p := &Publisher{st: st, clk: c, onPublish: onPublish}

	cr := cron.New(cron.WithSeconds())
	if _, err := cr.AddFunc(tickSpec, p.tick); err != nil {
		return nil, err
	}
	p.cronjob = cr
	return p, nil
}

// Start begins the cron schedule.
func (p *Publisher) Start() {
	p.cronjob.Start()
}

// Stop halts the cron schedule, waiting for any in-flight tick to finish.
func (p *Publisher) Stop() {
	<-p.cronjob.Stop().Done()
}

// MarkDirty tells the Publisher that the wrapped Station has changed
// since the last snapshot. Call it once per group processed.
func (p *Publisher) MarkDirty() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.st.PI != p.lastPI {
		p.publishLocked()
		p.lastPI = p.st.PI
	}
	p.dirty = true
}

func (p *Publisher) tick() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.dirty {
		return
	}
	p.publishLocked()
}

func (p *Publisher) publishLocked() {
	snap := p.compose()
	p.latest = snap
	p.dirty = false
	if p.onPublish != nil {
		p.onPublish(snap)
	}
}

// Latest returns the most recently composed Snapshot, or nil if none has
// been published yet.
func (p *Publisher) Latest() *Snapshot {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.latest
}

func (p *Publisher) compose() *Snapshot {
	st := p.st
	snap := &Snapshot{
		PI: st.PI, TP: st.TP, TA: st.TA, PTY: st.PTY,
		PS: st.PS(), RT: st.ActiveRT, PTYN: st.PTYN(), LongPS: st.LongPS(),
		ECC: st.ECC, HaveECC: st.HaveECC,
		LIC: st.LIC, HaveLIC: st.HaveLIC,
		PIN: st.PIN, HavePIN: st.HavePIN,
		UTCTime: st.UTCTime, LocalTime: st.LocalTime, HaveCT: st.HaveCT,
		GeneratedAt: p.clk.Now(),
	}

	if st.AF != nil {
		snap.AFSet = append([]float64(nil), st.AF.Set...)
		snap.AFType = st.AF.Type
	}
	if st.BER != nil {
		snap.BER = st.BER.BER()
	}
	if st.TMC != nil {
		snap.TMCActive = st.TMC.Active
		snap.TMCPaused = st.TMC.Paused
		snap.TMCMessages = append([]tmcgroup.Message(nil), st.TMC.Messages...)
	}
	if st.PSHistory != nil {
		snap.PSHistory = append([]string(nil), st.PSHistory.Ring.Entries()...)
	}
	if st.RTHistory != nil {
		snap.RTHistory = append([]string(nil), st.RTHistory.Ring.Entries()...)
	}
	if st.EON != nil {
		snap.EONNetworks = make(map[string]eon.NetworkInfo, len(st.EON.Networks))
		for k, v := range st.EON.Networks {
			snap.EONNetworks[k] = *v
		}
	}
	if st.RTPlus != nil {
		snap.RTPlusTags = append([]oda.Tag(nil), st.RTPlus.Tags...)
	}

	snap.AnalyzerActive = st.AnalyzerActive
	snap.GroupTotal = st.GroupTotal
	if st.GroupCounts != nil {
		snap.GroupCounts = make(map[string]uint64, len(st.GroupCounts))
		for k, v := range st.GroupCounts {
			snap.GroupCounts[k] = v
		}
	}
	snap.RecentGroups = st.DrainRecentGroups()

	return snap
}
