// Command substrate is the operator CLI over the commitment substrate:
// inspect ledger entries, verify the audit chain, query and compact the
// provenance DAG. It never authorizes effects — that path exists only
// through the gate.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mapleaiorg/substrate/pkg/anchor"
	"github.com/mapleaiorg/substrate/pkg/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, separated for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	cfg := config.Load()

	switch args[1] {
	case "daemon", "serve":
		return runDaemonCmd(cfg, args[2:], stdout, stderr)
	case "inspect":
		return runInspectCmd(cfg, args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(cfg, args[2:], stdout, stderr)
	case "provenance":
		return runProvenanceCmd(cfg, args[2:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: substrate <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	printSection(w, "Process")
	printCommand(w, "daemon", "boot the substrate and run until signalled")
	printSection(w, "Inspection")
	printCommand(w, "inspect commitment <id>", "print a ledger entry and its decision card")
	printSection(w, "Integrity")
	printCommand(w, "audit verify", "re-verify the audit hash chain; exit 0 iff intact")
	printSection(w, "Provenance")
	printCommand(w, "provenance path <from> <to>", "print the causal path between two events")
	printCommand(w, "provenance compact --before <anchor>", "compact the DAG before a temporal anchor")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s:\n", title)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %-38s %s\n", name, desc)
}

func runProvenanceCmd(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: substrate provenance <path|compact> ...")
		return 2
	}
	switch args[0] {
	case "path":
		if len(args) != 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: substrate provenance path <from> <to>")
			return 2
		}
		return runProvenancePath(cfg, args[1], args[2], stdout, stderr)
	case "compact":
		fs := flag.NewFlagSet("provenance compact", flag.ContinueOnError)
		fs.SetOutput(stderr)
		before := fs.String("before", "", "temporal anchor (physical_ms:logical:node)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *before == "" {
			_, _ = fmt.Fprintln(stderr, "provenance compact: --before is required")
			return 2
		}
		beforeAnchor, err := anchor.Parse(*before)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "provenance compact: %v\n", err)
			return 2
		}
		return runProvenanceCompact(cfg, beforeAnchor, stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown provenance subcommand %q\n", args[0])
		return 2
	}
}
