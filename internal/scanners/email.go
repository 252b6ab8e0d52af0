// Package scanners holds a small set of demonstration content scanners
// built against the scanner contract: enough to exercise every phase
// of the orchestrator (registration, recorder/histogram creation,
// dispatch, carving, shutdown) from cmd/scanctl without depending on
// any real forensic scanner implementation.
package scanners

import (
	"regexp"

	"github.com/rstorm/scancore/internal/featurerecorder"
	"github.com/rstorm/scancore/internal/histogram"
	"github.com/rstorm/scancore/internal/scanner"
)

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// Email is a find_scanner: it regex-searches each buffer's page for
// email-shaped strings and writes every match to the "email" recorder,
// with a companion histogram counting matches by domain.
type Email struct{}

func (Email) Scan(p *scanner.Params) error {
	switch p.Phase {
	case scanner.PhaseInit:
		p.Info.Name = "email"
		p.Info.Author = "scancore"
		p.Info.Description = "finds email-shaped strings"
		p.Info.Version = "1.0"
		p.Info.Flags = scanner.Flags{
			DefaultEnabled:  true,
			ScanNgramBuffer: false,
			FindScanner:     true,
		}
		def := featurerecorder.DefaultDef("email")
		p.Info.FeatureRecorders = []featurerecorder.Def{def}
		p.Info.Histograms = map[string][]histogram.Def{
			"email": {{Name: "domains", Regex: `@(\S+)$`}},
		}
	case scanner.PhaseScan:
		rec, ok := p.Recorders.NamedFeatureRecorder("email")
		if !ok {
			return nil
		}
		page := p.Buf.PageBytes()
		for _, loc := range emailRe.FindAllIndex(page, -1) {
			if err := rec.WriteBuf(p.Buf, loc[0], loc[1]-loc[0]); err != nil {
				return err
			}
		}
	}
	return nil
}
