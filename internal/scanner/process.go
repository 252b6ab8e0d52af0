package scanner

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/rstorm/scancore/internal/pos0"
	"github.com/rstorm/scancore/internal/sbuf"
)

// ProcessSbuf takes ownership of buf: it is released (and must have
// zero live children) when this call returns, matching the dispatch
// contract's destruction-order rule.
func (s *Set) ProcessSbuf(buf *sbuf.Sbuf) error {
	if err := s.requirePhase(PhaseScan); err != nil {
		return err
	}
	defer buf.Release()

	if buf.Depth() >= s.cfg.MaxDepth {
		ctx := fmt.Sprintf("depth=%d max_depth=%d", buf.Depth(), s.cfg.MaxDepth)
		return s.alert(buf.Pos0(), "MAX_DEPTH_REACHED", ctx)
	}

	for {
		cur := s.maxDepthSeen.Load()
		d := int64(buf.Depth())
		if d <= cur {
			break
		}
		if s.maxDepthSeen.CompareAndSwap(cur, d) {
			break
		}
	}

	if s.debug.NoScanners {
		return nil
	}

	seen := s.recorders.CheckPreviouslyProcessed(buf)
	if seen {
		s.dupBytesEncountered.Add(int64(buf.BufSize()))
		if s.cfg.DupDataAlerts {
			if err := s.alert(buf.Pos0(), fmt.Sprintf("DUP SBUF %s", buf.Hash()), ""); err != nil {
				log.Printf("scanner: dup alert failed: %v", err)
			}
		}
	}
	ngram := buf.FindNgramSize(s.cfg.MaxNgram)

	if s.debug.DumpData {
		log.Printf("scanner: sbuf %s: %d bytes\n%s", buf.Pos0(), buf.BufSize(), hexDump(buf.PageBytes()))
	}

	for _, reg := range s.enabledSnapshot() {
		if !reg.enabled.Load() {
			continue
		}
		if ngram > 0 && !reg.info.Flags.ScanNgramBuffer {
			continue
		}
		if buf.Depth() > 0 && reg.info.Flags.Depth0Only {
			continue
		}
		if seen && !reg.info.Flags.ScanSeenBefore {
			continue
		}

		if s.debug.PrintSteps {
			log.Printf("scanner: invoking %q on %s", reg.info.Name, buf.Pos0())
		}

		s.dispatchOne(reg, buf)
	}

	if n := buf.Children(); n != 0 {
		log.Printf("scanner: %s left %d live children after dispatch", buf.Pos0(), n)
	}
	return nil
}

// dispatchOne invokes one scanner behind an exception boundary: a Go
// panic (the closest analogue to a thrown exception) or a returned
// error is caught, timed, and logged to the alert recorder tagged with
// the offending scanner's name, never propagated to the caller.
func (s *Set) dispatchOne(reg *registration, buf *sbuf.Sbuf) {
	start := time.Now()
	var scanErr error

	func() {
		defer func() {
			if r := recover(); r != nil {
				scanErr = fmt.Errorf("panic: %v", r)
			}
		}()
		params := &Params{
			Phase:     PhaseScan,
			Buf:       buf,
			Recorders: s.recorders,
			Recurse:   s.ProcessSbuf,
		}
		scanErr = reg.scanner.Scan(params)
	}()

	elapsed := time.Since(start)
	reg.calls.Add(1)
	reg.nanos.Add(elapsed.Nanoseconds())

	if scanErr != nil {
		body := strings.ReplaceAll(scanErr.Error(), "\t", " ")
		feature := fmt.Sprintf("<exception scanner=%q>%s</exception>", reg.info.Name, body)
		_ = s.alert(buf.Pos0(), feature, "")
	}
}

// alert writes one line to the alert recorder. If the alert recorder
// cannot be created or written to, it logs and swallows the error:
// alert delivery is best-effort and must never abort a scan.
func (s *Set) alert(p pos0.Pos0, feature, context string) error {
	rec, err := s.recorders.GetAlertRecorder()
	if err != nil {
		log.Printf("scanner: alert recorder unavailable: %v", err)
		return nil
	}
	if err := rec.Write(p, []byte(feature), []byte(context)); err != nil {
		log.Printf("scanner: alert write failed: %v", err)
	}
	return nil
}

func hexDump(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i += 16 {
		end := i + 16
		if end > len(b) {
			end = len(b)
		}
		fmt.Fprintf(&sb, "%08x  % x\n", i, b[i:end])
	}
	return sb.String()
}

// Shutdown invokes each enabled scanner with a PHASE_SHUTDOWN message,
// flushes and closes the recorder set (materializing every histogram
// in the process), and transitions the set to PHASE_SHUTDOWN.
func (s *Set) Shutdown() error {
	if err := s.requirePhase(PhaseScan); err != nil {
		return err
	}

	for _, reg := range s.enabledSnapshot() {
		if !reg.enabled.Load() {
			continue
		}
		params := &Params{Phase: PhaseShutdown, Recorders: s.recorders}
		if err := reg.scanner.Scan(params); err != nil {
			log.Printf("scanner: %q shutdown error: %v", reg.info.Name, err)
		}
	}

	if err := s.recorders.Shutdown(); err != nil {
		return fmt.Errorf("scanner: recorder set shutdown: %w", err)
	}

	return s.transition(PhaseScan, PhaseShutdown)
}

// Stats is a per-scanner invocation summary emitted at shutdown.
type Stats struct {
	Name  string
	Calls int64
	Nanos int64
}

// DumpStats returns each scanner's accumulated call count and total
// time spent, in registration order.
func (s *Set) DumpStats() []Stats {
	regs := s.enabledSnapshot()
	out := make([]Stats, len(regs))
	for i, reg := range regs {
		out[i] = Stats{Name: reg.info.Name, Calls: reg.calls.Load(), Nanos: reg.nanos.Load()}
	}
	return out
}

// MaxDepthSeen returns the greatest sbuf depth observed by ProcessSbuf
// so far.
func (s *Set) MaxDepthSeen() int64 { return s.maxDepthSeen.Load() }
