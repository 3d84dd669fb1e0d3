// Command rixrun is the CLI front-end (C11): it resolves configuration,
// loads a RISCiX ZMAGIC binary into a fresh Emulator, and drives it to
// completion, propagating the guest's exit status as the process exit code.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"rixrun/internal/armcpu"
	"rixrun/internal/config"
	"rixrun/internal/emulator"
	"rixrun/internal/logger"
)

func main() {
	optRoot := getopt.StringLong("root", 'r', "", "Guest root directory (shared-library search path)")
	optVerbose := getopt.IntLong("verbose", 'v', 0, "Trace verbosity: 0 quiet, 1 syscalls, 2 +SWI trace")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	args := getopt.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: rixrun [-root DIR] [-verbose N] <path> [guest-args...]")
		os.Exit(1)
	}
	path, guestArgs := args[0], args

	var file *os.File
	if *optLogFile != "" {
		file, _ = os.Create(*optLogFile)
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelDebug)
	handler := logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, *optVerbose)
	log := slog.New(handler)
	slog.SetDefault(log)

	cfg, err := config.Load(optRoot, resolveVerboseFlag(getopt.IsSet("verbose"), optVerbose))
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
	handler.SetVerbose(cfg.Verbose)

	root := cfg.Root
	if root == "" {
		root = "."
	}

	e, err := emulator.New(emulator.Config{Root: cfg.Root, Verbose: cfg.Verbose}, log)
	if err != nil {
		log.Error("rixrun: constructing emulator", "error", err)
		os.Exit(1)
	}

	if err := e.Load(root, path, guestArgs, os.Environ()); err != nil {
		log.Error("rixrun: loading guest", "path", path, "error", err)
		os.Exit(1)
	}

	stepper, err := newStepper(e)
	if err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}

	code, err := e.Run(context.Background(), stepper)
	if err != nil {
		log.Error("rixrun: guest run failed", "error", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// newStepper constructs the armcpu.Stepper that drives e.CPU one guest
// instruction at a time. The 26-bit ARMv2/v3 decoder itself is an external
// collaborator (spec.md §1): this repository defines the Stepper seam and
// exercises it in tests via internal/armcpu/script, but ships no production
// decoder. A real deployment links one in here, e.g.:
//
//	import armv2 "some/external/armv2-decoder"
//	return armv2.New(e.Memory, e.CPU), nil
//
// Lacking such a collaborator, this build fails closed with a clear error
// rather than silently no-opping the guest program.
func newStepper(e *emulator.Emulator) (armcpu.Stepper, error) {
	return nil, fmt.Errorf("rixrun: no ARM instruction decoder linked in; " +
		"internal/armcpu.Stepper has no production implementation in this build")
}

// resolveVerboseFlag returns the -verbose value only when isSet reports the
// flag was actually given on the command line. getopt.IntLong always hands
// back a non-nil *int defaulting to 0, so without this, config.Load would
// see -verbose as explicitly set to 0 on every run and silently override
// RIX_VERBOSE for the ordinary "env var, no flag" invocation.
func resolveVerboseFlag(isSet bool, flagVerbose *int) *int {
	if !isSet {
		return nil
	}
	return flagVerbose
}
