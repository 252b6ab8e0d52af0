package scanners

import (
	"bytes"
	"time"

	"github.com/rstorm/scancore/internal/featurerecorder"
	"github.com/rstorm/scancore/internal/scanner"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// ZipCarver looks for a local-file-header signature and carves
// everything from the signature to the end of the buffer out as a
// standalone ".zip" artifact, recording its relative path. It exists
// to exercise the carve pipeline end to end from a registered scanner.
type ZipCarver struct{}

func (ZipCarver) Scan(p *scanner.Params) error {
	switch p.Phase {
	case scanner.PhaseInit:
		p.Info.Name = "zip"
		p.Info.Author = "scancore"
		p.Info.Description = "carves embedded ZIP local file headers"
		p.Info.Version = "1.0"
		p.Info.Flags = scanner.Flags{DefaultEnabled: true}
		def := featurerecorder.DefaultDef("zip")
		def.CarveMode = featurerecorder.CarveAll
		p.Info.FeatureRecorders = []featurerecorder.Def{def}
	case scanner.PhaseScan:
		rec, ok := p.Recorders.NamedFeatureRecorder("zip")
		if !ok {
			return nil
		}
		page := p.Buf.PageBytes()
		idx := bytes.Index(page, zipMagic)
		if idx < 0 {
			return nil
		}
		member, err := p.Buf.Carve("ZIP", idx, p.Buf.BufSize()-idx)
		if err != nil {
			return err
		}
		defer member.Release()
		_, err = rec.Carve(nil, member, ".zip", time.Time{})
		return err
	}
	return nil
}
