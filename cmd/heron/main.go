// Heron CLI - assembles, bundles, and runs Heron programs
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/heronvm/heron/asm"
	"github.com/heronvm/heron/bundle"
	"github.com/heronvm/heron/manifest"
	"github.com/heronvm/heron/vm"
)

var log = commonlog.GetLogger("heron")

func main() {
	output := flag.String("o", "", "Write a bundle (.hbc) to this path after assembling")
	dis := flag.Bool("dis", false, "Print the disassembly and exit")
	noRun := flag.Bool("no-run", false, "Assemble and bundle only, do not execute")
	trace := flag.Bool("trace", false, "Log every executed instruction")
	dumpStack := flag.Bool("dump-stack", false, "Print the final stack after the run")
	verbosity := flag.Int("v", 0, "Log verbosity (0 errors only, 2 debug)")
	dmpOut := flag.String("dmp-out", "", "Write dmp diagnostics to this file instead of stdout")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: heron [options] [program.hasm | program.hbc]\n\n")
		fmt.Fprintf(os.Stderr, "Assembles and runs a Heron program. Without a path, settings are read\n")
		fmt.Fprintf(os.Stderr, "from heron.toml in the current directory.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  heron add.hasm                # Assemble and run\n")
		fmt.Fprintf(os.Stderr, "  heron -o add.hbc add.hasm     # Assemble to a bundle as well\n")
		fmt.Fprintf(os.Stderr, "  heron -dis add.hbc            # Disassemble a bundle\n")
		fmt.Fprintf(os.Stderr, "  heron -trace -v 2 loop.hasm   # Run with instruction tracing\n")
	}
	flag.Parse()

	// Manifest-driven defaults when invoked without a path.
	var path string
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	} else {
		m, err := manifest.Load(".")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: no program given and no heron.toml: %v\n", err)
			flag.Usage()
			os.Exit(1)
		}
		path = m.SourcePath()
		if *output == "" {
			*output = m.OutputPath()
		}
		if m.Run.Trace {
			*trace = true
		}
		if m.Run.DumpStack {
			*dumpStack = true
		}
		if *verbosity == 0 {
			*verbosity = m.Run.Verbosity
		}
		if *dmpOut == "" {
			*dmpOut = m.Run.Output
		}
	}

	commonlog.Configure(*verbosity, nil)

	program, pool, err := loadProgram(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Infof("loaded %s: %d instructions", path, len(program))

	if *dis {
		fmt.Println(vm.Disassemble(program))
		return
	}

	if *output != "" && !strings.HasSuffix(path, ".hbc") {
		b, err := bundle.New(programName(path), program, pool.All())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := bundle.WriteFile(*output, b); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log.Infof("wrote bundle %s (id %s)", *output, b.ID)
	}

	if *noRun {
		return
	}

	opts := []vm.Option{
		vm.WithFilePath(path),
		vm.WithStringTable(pool),
	}
	if *dmpOut != "" {
		f, err := os.Create(*dmpOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		opts = append(opts, vm.WithOutput(f))
	}
	if *trace {
		opts = append(opts, vm.WithTrace(func(ip int, in vm.Instruction) {
			log.Infof("%04d  %s", ip, in)
		}))
	}

	engine, err := vm.NewEngine(program, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	registerNatives(engine)

	if err := engine.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *dumpStack {
		for i, v := range engine.Stack() {
			fmt.Printf("%3d  %s\n", i, engine.FormatValue(v))
		}
	}
}

// loadProgram reads either an assembly source or a compiled bundle.
func loadProgram(path string) (vm.Program, *vm.StringTable, error) {
	if strings.HasSuffix(path, ".hbc") {
		b, err := bundle.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		log.Debugf("bundle %s (id %s)", b.Name, b.ID)
		return b.Program()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	program, err := asm.Assemble(string(data), path)
	if err != nil {
		return nil, nil, err
	}
	return program, vm.NewStringTable(), nil
}

func programName(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// registerNatives installs the host functions available to programs.
func registerNatives(e *vm.Engine) {
	// print pops the top value and writes it to stdout.
	e.RegisterNative("print", func(e *vm.Engine) error {
		v, err := e.Pop()
		if err != nil {
			return err
		}
		if v.IsStr() {
			fmt.Println(e.Strings().Name(v.StringID()))
		} else {
			fmt.Println(e.FormatValue(v))
		}
		return nil
	})

	// clock pushes the current time in seconds as a float.
	e.RegisterNative("clock", func(e *vm.Engine) error {
		e.Push(vm.FromFloat64(float64(time.Now().UnixNano()) / 1e9))
		return nil
	})
}
