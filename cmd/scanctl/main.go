// Command scanctl is a minimal driver for the scanning core: it reads
// one input file whole, wraps it in a root buffer, registers the
// built-in demonstration scanners, and runs it through to shutdown.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rstorm/scancore/internal/config"
	"github.com/rstorm/scancore/internal/pos0"
	"github.com/rstorm/scancore/internal/sbuf"
	"github.com/rstorm/scancore/internal/scanner"
	"github.com/rstorm/scancore/internal/scanners"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  scanctl -in <file> -outdir <dir> [-disable name[,name...]] [-hash md5|sha1|sha256]\n")
	os.Exit(1)
}

func main() {
	var (
		inFname  = flag.String("in", "", "input file to scan")
		outdir   = flag.String("outdir", "", "output directory (empty for NO_OUTDIR)")
		hashAlgo = flag.String("hash", "sha1", "content hash algorithm")
		maxDepth = flag.Int("max-depth", 7, "maximum recursion depth")
		maxNgram = flag.Int("max-ngram", 4, "maximum ngram period to detect")
		pedantic = flag.Bool("pedantic", false, "fatal on feature/context size or whitespace violations")
		disable  = flag.String("disable", "", "comma-separated scanner names to disable")
	)
	flag.Parse()

	if *inFname == "" {
		usage()
	}

	algo, err := config.ParseHashAlgorithm(*hashAlgo)
	if err != nil {
		log.Fatalf("scanctl: %v", err)
	}

	cfg := config.New()
	cfg.InputFname = *inFname
	cfg.Outdir = *outdir
	cfg.HashAlgorithm = algo
	cfg.MaxDepth = *maxDepth
	cfg.MaxNgram = *maxNgram
	cfg.Pedantic = *pedantic
	cfg.Commands = parseDisableList(*disable)

	data, err := os.ReadFile(*inFname)
	if err != nil {
		log.Fatalf("scanctl: read %q: %v", *inFname, err)
	}

	set := scanner.New(cfg, config.DebugFlagsFromEnv())

	for _, sc := range []scanner.Scanner{scanners.Email{}, scanners.ZipCarver{}} {
		if err := set.AddScanner(sc); err != nil {
			log.Fatalf("scanctl: register scanner: %v", err)
		}
	}

	if err := set.ApplyScannerCommands(cfg.Commands); err != nil {
		log.Fatalf("scanctl: apply commands: %v", err)
	}
	if err := set.PhaseScan(); err != nil {
		log.Fatalf("scanctl: enter scan phase: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan error, 1)

	go func() {
		buf, err := sbuf.New(pos0.Top, data, len(data))
		if err != nil {
			done <- err
			return
		}
		done <- set.ProcessSbuf(buf)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("scanctl: received %v, waiting for in-flight scan to finish", sig)
		if err := <-done; err != nil {
			log.Printf("scanctl: scan error: %v", err)
		}
	case err := <-done:
		if err != nil {
			log.Printf("scanctl: scan error: %v", err)
		}
	}

	if err := set.Shutdown(); err != nil {
		log.Fatalf("scanctl: shutdown: %v", err)
	}

	for name, counts := range set.Recorders().DumpNameCountStats() {
		log.Printf("scanctl: recorder %-12s features=%d carved=%d", name, counts[0], counts[1])
	}
	for _, stat := range set.DumpStats() {
		log.Printf("scanctl: scanner %-12s calls=%d total=%dns", stat.Name, stat.Calls, stat.Nanos)
	}
}

func parseDisableList(s string) []config.Command {
	if s == "" {
		return nil
	}
	var cmds []config.Command
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if name := s[start:i]; name != "" {
				cmds = append(cmds, config.Command{Scanner: name, Action: config.Disable})
			}
			start = i + 1
		}
	}
	return cmds
}
