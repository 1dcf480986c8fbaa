// Command dwarfidx builds and queries a parallel name index over the
// DWARF debugging information of ELF64 object files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/orizon-lang/dwarfidx/internal/cliutil"
	"github.com/orizon-lang/dwarfidx/internal/dwarfindex"
	"github.com/orizon-lang/dwarfidx/internal/rpc"
	"github.com/orizon-lang/dwarfidx/internal/watch"
)

func must(err error) {
	if err != nil {
		cliutil.ExitWithError("%v", err)
	}
}

func init() {
	cliutil.MustParseVersion()
}

func main() {
	if len(os.Args) < 2 {
		printTopUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		runAdd(os.Args[2:])
	case "find":
		runFind(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "version", "--version", "-v":
		jsonOut := len(os.Args) > 2 && (os.Args[2] == "-json" || os.Args[2] == "--json")
		cliutil.PrintVersion("dwarfidx", jsonOut)
	case "--help", "-h", "help":
		printTopUsage()
	default:
		cliutil.ExitWithError("unknown command %q", os.Args[1])
	}
}

func printTopUsage() {
	cliutil.PrintUsage("dwarfidx", []cliutil.CommandInfo{
		{Name: "add", Description: "index object files and report a summary"},
		{Name: "find", Description: "index a directory and query a name"},
		{Name: "watch", Description: "re-index a directory as it changes"},
		{Name: "serve", Description: "serve Find queries over QUIC"},
		{Name: "query", Description: "query a running serve instance"},
		{Name: "version", Description: "print version information"},
	})
}

func runAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	verbose := fs.Bool("v", false, "verbose logging")
	must(fs.Parse(args))

	if fs.NArg() == 0 {
		cliutil.ExitWithError("add requires at least one object file path")
	}

	logger := cliutil.NewLogger(*verbose, false)
	ix := dwarfindex.New(nil)

	for _, path := range fs.Args() {
		if err := ix.Add(path); err != nil {
			logger.Error("%s: %v", path, err)

			continue
		}

		fmt.Printf("indexed %s\n", path)
	}
}

func runFind(args []string) {
	fs := flag.NewFlagSet("find", flag.ExitOnError)
	dir := fs.String("C", ".", "directory to index (non-recursive glob)")
	glob := fs.String("glob", "*.o", "glob pattern for object files within -C")
	filesFlag := fs.String("files", "", "comma-separated explicit file list (overrides -C/-glob)")
	tag := fs.Uint("tag", 0, "restrict to a DWARF tag (0 = any)")
	must(fs.Parse(args))

	if fs.NArg() != 1 {
		cliutil.ExitWithError("find requires exactly one name argument")
	}

	var paths []string

	if *filesFlag != "" {
		paths = splitComma(*filesFlag)
	} else {
		matches, err := filepath.Glob(filepath.Join(*dir, *glob))
		must(err)
		paths = matches
	}

	ix := dwarfindex.New(nil)

	for _, p := range paths {
		if err := ix.Add(p); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", p, err)
		}
	}

	locs, err := ix.Find(fs.Arg(0), uint8(*tag))
	must(err)

	for _, l := range locs {
		fmt.Printf("%s\t%d\t%d\n", l.File, l.CUOffset, l.DIEOffset)
	}
}

func splitComma(s string) []string {
	var out []string

	start := 0

	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}

			start = i + 1
		}
	}

	return out
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	dir := fs.String("dir", ".", "directory to watch")
	glob := fs.String("glob", "*.o", "glob pattern for object files within -dir")
	must(fs.Parse(args))

	logger := cliutil.NewLogger(true, false)

	w, err := watch.New(*dir, *glob, logger)
	must(err)
	defer w.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		close(done)
	}()

	must(w.Run(done))
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "localhost:4433", "address to listen on")
	dir := fs.String("dir", ".", "directory to index")
	glob := fs.String("glob", "*.o", "glob pattern for object files within -dir")
	must(fs.Parse(args))

	logger := cliutil.NewLogger(true, false)

	w, err := watch.New(*dir, *glob, logger)
	must(err)
	defer w.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		done := make(chan struct{})

		go func() {
			<-ctx.Done()
			close(done)
		}()

		_ = w.Run(done)
	}()

	srv := &rpc.Server{Addr: *addr, IndexFunc: w.Current, Logger: logger}

	must(srv.ListenAndServe(ctx))
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	addr := fs.String("addr", "localhost:4433", "server address")
	tag := fs.Uint("tag", 0, "restrict to a DWARF tag (0 = any)")
	must(fs.Parse(args))

	if fs.NArg() != 1 {
		cliutil.ExitWithError("query requires exactly one name argument")
	}

	ctx := context.Background()

	c, err := rpc.Dial(ctx, *addr)
	must(err)
	defer c.Close()

	locs, err := c.Find(ctx, fs.Arg(0), uint8(*tag))
	must(err)

	for _, l := range locs {
		fmt.Printf("%s\t%d\t%d\n", l.File, l.CUOffset, l.DIEOffset)
	}
}
