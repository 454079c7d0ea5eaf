package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/hoistjs/hoist/internal/logger"
	"github.com/hoistjs/hoist/pkg/cli"
)

func main() {
	osArgs := os.Args[1:]
	traceFile := ""
	cpuprofileFile := ""

	// Profiling flags are handled here so that they cover the whole run
	argsEnd := 0
	for _, arg := range osArgs {
		switch {
		case strings.HasPrefix(arg, "--trace="):
			traceFile = arg[len("--trace="):]

		case strings.HasPrefix(arg, "--cpuprofile="):
			cpuprofileFile = arg[len("--cpuprofile="):]

		default:
			osArgs[argsEnd] = arg
			argsEnd++
		}
	}
	osArgs = osArgs[:argsEnd]

	// Capture the defer statements below so the profiles are flushed before
	// the process exits
	exitCode := 1
	func() {
		// To view a trace, use "go tool trace [file]"
		if traceFile != "" {
			f, err := os.Create(traceFile)
			if err != nil {
				logger.PrintErrorToStderr(fmt.Sprintf("Failed to create trace file: %s", err.Error()))
				return
			}
			defer f.Close()
			if err := trace.Start(f); err != nil {
				logger.PrintErrorToStderr(fmt.Sprintf("Failed to start trace: %s", err.Error()))
				return
			}
			defer trace.Stop()
		}

		if cpuprofileFile != "" {
			f, err := os.Create(cpuprofileFile)
			if err != nil {
				logger.PrintErrorToStderr(fmt.Sprintf("Failed to create cpuprofile file: %s", err.Error()))
				return
			}
			defer f.Close()
			if err := pprof.StartCPUProfile(f); err != nil {
				logger.PrintErrorToStderr(fmt.Sprintf("Failed to start cpuprofile: %s", err.Error()))
				return
			}
			defer pprof.StopCPUProfile()
		}

		exitCode = cli.Run(osArgs)
	}()

	os.Exit(exitCode)
}
