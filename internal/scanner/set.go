package scanner

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rstorm/scancore/internal/config"
	"github.com/rstorm/scancore/internal/featurerecorder"
)

// AllScanners is the distinguished command target meaning "every
// registered scanner except those with Flags.NoAll set".
const AllScanners = config.AllScanners

// registration is one scanner's fixed identity plus its live state.
type registration struct {
	scanner Scanner
	info    Info
	enabled atomic.Bool

	calls   atomic.Int64
	nanos   atomic.Int64
}

// Set is the Scanner Set (C7): the phase state machine, the
// registration database, and the dispatch loop.
type Set struct {
	phase atomic.Int32

	mu      sync.RWMutex // guards order/byName; write-only during INIT
	order   []*registration
	byName  map[string]*registration

	recorders *featurerecorder.Set
	cfg       *config.Config
	debug     config.DebugFlags

	maxDepthSeen        atomic.Int64
	dupBytesEncountered atomic.Int64

	alertName string
}

// DupBytesEncountered returns the total size, in bytes, of every sbuf
// ProcessSbuf has seen whose content hash had already been processed
// before (regardless of whether DupDataAlerts is set).
func (s *Set) DupBytesEncountered() int64 { return s.dupBytesEncountered.Load() }

// New constructs a scanner set at PHASE_INIT, owning a fresh
// feature-recorder set built from cfg.
func New(cfg *config.Config, debug config.DebugFlags) *Set {
	return &Set{
		byName:    make(map[string]*registration),
		recorders: featurerecorder.NewSet(cfg.Outdir, string(cfg.HashAlgorithm), cfg.Pedantic),
		cfg:       cfg,
		debug:     debug,
	}
}

// Recorders exposes the owned feature-recorder set, e.g. for a driver
// that wants to dump stats after Shutdown.
func (s *Set) Recorders() *featurerecorder.Set { return s.recorders }

// Phase returns the set's current lifecycle phase.
func (s *Set) Phase() Phase { return Phase(s.phase.Load()) }

func (s *Set) requirePhase(p Phase) error {
	if s.Phase() != p {
		return fmt.Errorf("scanner: operation requires phase %s, set is in phase %s", p, s.Phase())
	}
	return nil
}

func (s *Set) transition(from, to Phase) error {
	if !s.phase.CompareAndSwap(int32(from), int32(to)) {
		return fmt.Errorf("scanner: cannot transition %s -> %s from phase %s", from, to, s.Phase())
	}
	return nil
}

// AddScanner registers sc: an INIT-only call to sc.Scan populates its
// Info (missing info is fatal, matching the scanner contract's
// registration rule), after which the scanner is indexed by name and,
// if its Flags.DefaultEnabled, added to the enabled set.
func (s *Set) AddScanner(sc Scanner) error {
	if err := s.requirePhase(PhaseInit); err != nil {
		return err
	}

	var info Info
	p := &Params{Phase: PhaseInit, Info: &info}
	if err := sc.Scan(p); err != nil {
		return fmt.Errorf("scanner: registration failed: %w", err)
	}
	if info.Name == "" {
		return fmt.Errorf("scanner: registration produced no info (missing name)")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byName[info.Name]; exists {
		return fmt.Errorf("scanner: duplicate scanner name %q", info.Name)
	}

	reg := &registration{scanner: sc, info: info}
	reg.enabled.Store(info.Flags.DefaultEnabled)
	s.byName[info.Name] = reg
	s.order = append(s.order, reg)

	if s.debug.Register {
		log.Printf("scanner: registered %q (default_enabled=%v)", info.Name, info.Flags.DefaultEnabled)
	}
	return nil
}

// ApplyScannerCommands resolves cfg.Commands in order, then creates the
// alert recorder (always; there is no option to suppress it) and every
// feature recorder and histogram declared by any enabled scanner's info,
// and transitions the
// set to PHASE_ENABLED. A named command matching no registered scanner
// is fatal.
func (s *Set) ApplyScannerCommands(commands []config.Command) error {
	if err := s.requirePhase(PhaseInit); err != nil {
		return err
	}

	s.mu.Lock()
	for _, cmd := range commands {
		if cmd.Scanner == AllScanners {
			for _, reg := range s.order {
				if reg.info.Flags.NoAll {
					continue
				}
				reg.enabled.Store(cmd.Action == config.Enable)
			}
			continue
		}
		reg, ok := s.byName[cmd.Scanner]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("scanner: command references unknown scanner %q", cmd.Scanner)
		}
		reg.enabled.Store(cmd.Action == config.Enable)
	}
	enabledRegs := make([]*registration, 0, len(s.order))
	for _, reg := range s.order {
		if reg.enabled.Load() {
			enabledRegs = append(enabledRegs, reg)
		}
	}
	s.mu.Unlock()

	if _, err := s.recorders.GetAlertRecorder(); err != nil {
		return fmt.Errorf("scanner: create alert recorder: %w", err)
	}

	createdHistograms := mapset.NewSet[string]()
	for _, reg := range enabledRegs {
		for _, def := range reg.info.FeatureRecorders {
			if _, exists := s.recorders.NamedFeatureRecorder(def.Name); exists {
				continue
			}
			if _, err := s.recorders.CreateFeatureRecorder(def); err != nil {
				return fmt.Errorf("scanner: %q: create recorder %q: %w", reg.info.Name, def.Name, err)
			}
		}
		for recorderName, hdefs := range reg.info.Histograms {
			for _, hdef := range hdefs {
				key := recorderName + "\x00" + hdef.Name
				if createdHistograms.Contains(key) {
					continue
				}
				if err := s.recorders.HistogramAdd(recorderName, hdef); err != nil {
					return fmt.Errorf("scanner: %q: histogram %q on %q: %w", reg.info.Name, hdef.Name, recorderName, err)
				}
				createdHistograms.Add(key)
			}
		}
	}

	return s.transition(PhaseInit, PhaseEnabled)
}

// PhaseScan transitions the set from PHASE_ENABLED to PHASE_SCAN, after
// which ProcessSbuf calls are permitted.
func (s *Set) PhaseScan() error {
	return s.transition(PhaseEnabled, PhaseScan)
}

// enabledSnapshot returns the registrations live at call time, safe to
// range over without holding the lock (the registration slice itself
// never mutates after PHASE_INIT).
func (s *Set) enabledSnapshot() []*registration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*registration, len(s.order))
	copy(out, s.order)
	return out
}

