// SPDX-License-Identifier: Apache-2.0
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"sable/internal/diag"
	"sable/internal/ir"
	"sable/internal/parser"
	"sable/internal/pass"
	"sable/internal/target"
	"sable/internal/target/aarch64"
	"sable/internal/target/x64"
)

func main() {
	out := flag.String("o", "", "output file (defaults to stdout for assembly)")
	assembly := flag.Bool("S", false, "emit assembly text")
	object := flag.Bool("c", false, "emit a relocatable object file")
	optLevel := flag.Int("O", 1, "optimization level (0-2)")
	targetName := flag.String("target", "x86_64-linux", "target triple: x86_64-linux, x86_64-windows, aarch64-linux")
	printIR := flag.Bool("print-ir", false, "print the IR after parsing and exit")
	verify := flag.Bool("verify", false, "run the IR verifier before code generation")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: sable [flags] <file.sbl>")
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	commonlog.Configure(*verbosity, nil)
	log := commonlog.GetLogger("sable")

	source, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read %s: %v", path, err)
		os.Exit(1)
	}

	ctx := ir.NewContext()
	unit, err := parser.ParseSource(path, string(source), ctx)
	if err != nil {
		renderer := diag.NewRenderer(path, string(source))
		if line, column, message, ok := parser.Position(err); ok {
			renderer.RenderParseError(os.Stderr, line, column, message)
		} else {
			color.Red("error: %v", err)
		}
		os.Exit(1)
	}

	if *printIR {
		fmt.Print(ir.Print(unit))
		return
	}

	spec, err := parseTarget(*targetName)
	if err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}

	if *verify {
		emitter := diag.NewEmitter()
		verifier := ir.NewVerifier(emitter)
		for _, f := range unit.Functions() {
			if f.HasBody() {
				verifier.RunOnFunction(f)
			}
		}
		if emitter.HasErrors() {
			diag.NewRenderer(path, string(source)).Render(os.Stderr, emitter.Diagnostics())
			os.Exit(1)
		}
	}

	fileType := target.AssemblyFile
	if *object && !*assembly {
		fileType = target.ObjectFile
	}

	output := os.Stdout
	if *out != "" {
		output, err = os.Create(*out)
		if err != nil {
			color.Red("failed to create %s: %v", *out, err)
			os.Exit(1)
		}
		defer output.Close()
	}

	var machine target.Machine
	switch spec.Arch {
	case target.AArch64:
		machine = aarch64.NewMachine(ctx, spec)
	default:
		machine = x64.NewMachine(ctx, spec)
	}

	level := pass.OptimizationLevel(*optLevel)
	manager := pass.NewManager()
	if err := machine.AddPassesForCodeGeneration(manager, output, fileType, level); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}

	log.Infof("compiling %s for %s", path, *targetName)
	if err := manager.Run(unit); err != nil {
		color.Red("compile failed: %v", err)
		os.Exit(1)
	}

	if *out != "" {
		color.Green("wrote %s", *out)
	}
}

func parseTarget(name string) (target.Spec, error) {
	switch name {
	case "x86_64-linux":
		return target.Spec{Arch: target.X8664, OS: target.Linux}, nil
	case "x86_64-windows":
		return target.Spec{Arch: target.X8664, OS: target.Windows}, nil
	case "aarch64-linux":
		return target.Spec{Arch: target.AArch64, OS: target.Linux}, nil
	}
	return target.Spec{}, fmt.Errorf("unknown target %q", name)
}
