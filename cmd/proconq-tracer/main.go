// Command proconq-tracer is a minimal line-oriented driver for
// internal/tracer.Controller. The interactive GUI described in §1 is out of
// scope; this CLI exposes the same controller operations (continue,
// add-filter, remove-filter) through stdin commands so the controller can
// be exercised and scripted without a UI toolkit.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/proconq/proconq/internal/logger"
	"github.com/proconq/proconq/internal/tracer"
)

func main() {
	var pid int
	var command string
	var procName string
	var interceptorPath string

	root := &cobra.Command{
		Use:   "proconq-tracer",
		Short: "drive the interceptor helper from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			chosen := 0
			for _, v := range []bool{pid != 0, command != "", procName != ""} {
				if v {
					chosen++
				}
			}
			if chosen != 1 {
				return fmt.Errorf("exactly one of -p, -e, or -n is required")
			}
			return runTracer(interceptorPath, pid, command, procName)
		},
	}

	root.Flags().IntVarP(&pid, "p", "p", 0, "attach to an existing pid")
	root.Flags().StringVarP(&command, "e", "e", "", "launch and trace a command")
	root.Flags().StringVarP(&procName, "n", "n", "", "attach by resolving a running process name to a pid")
	root.Flags().StringVar(&interceptorPath, "interceptor", "./interceptor", "path to the interceptor helper binary")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveName turns a process name into the single attachable pid running
// it, per §4 "process-name discovery": an error if none or more than one
// match, since attaching to the wrong one of several candidates is worse
// than asking the caller to disambiguate with -p.
func resolveName(name string) (int, error) {
	pids, err := tracer.FindAttachablePIDs(name)
	if err != nil {
		return 0, fmt.Errorf("resolve name %q: %w", name, err)
	}
	switch len(pids) {
	case 0:
		return 0, fmt.Errorf("no attachable process named %q", name)
	case 1:
		return pids[0], nil
	default:
		return 0, fmt.Errorf("%d attachable processes named %q, use -p <pid>: %v", len(pids), name, pids)
	}
}

func runTracer(interceptorPath string, pid int, command, procName string) error {
	ctl := tracer.NewController(interceptorPath, logger.Log)

	var target tracer.Target
	switch {
	case procName != "":
		resolved, err := resolveName(procName)
		if err != nil {
			return err
		}
		target = tracer.Target{IsPID: true, PID: resolved}
	case pid != 0:
		target = tracer.Target{IsPID: true, PID: pid}
	default:
		target = tracer.Target{Cmd: command}
	}
	if err := ctl.Start(target); err != nil {
		return fmt.Errorf("start tracer: %w", err)
	}

	stdin := bufio.NewScanner(os.Stdin)
	for ev := range ctl.Paused() {
		if ev.Terminal {
			fmt.Println("interceptor exited with an error")
			return nil
		}
		if !ev.Paused {
			continue
		}

		printSyscall(ev.Syscall)
		fmt.Print("(c)ontinue, (f) add filter <name>, (u) remove filter <name>: ")
		if !stdin.Scan() {
			return nil
		}
		handleCommand(ctl, strings.TrimSpace(stdin.Text()))
	}
	return nil
}

func printSyscall(sc tracer.Syscall) {
	fmt.Printf("%s %s", sc.Direction, sc.Name)
	if sc.Direction == tracer.Entry {
		for i := 0; i < sc.ArgsAmount; i++ {
			fmt.Printf(" arg%d=%s(%s)", i, sc.Args[i].Value, sc.Args[i].Type)
		}
	} else {
		fmt.Printf(" ret=%s", sc.Ret)
	}
	fmt.Println()
}

func handleCommand(ctl *tracer.Controller, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		ctl.Continue()
		return
	}
	switch fields[0] {
	case "f":
		if len(fields) > 1 {
			ctl.AddFilter(fields[1])
		}
	case "u":
		if len(fields) > 1 {
			ctl.RemoveFilter(fields[1])
		}
	case "setarg":
		if len(fields) > 2 {
			pos, err := strconv.Atoi(fields[1])
			if err == nil {
				ctl.SetArg(pos, fields[2])
			}
		}
		return
	case "setret":
		if len(fields) > 1 {
			ctl.SetRet(fields[1])
		}
		return
	}
	ctl.Continue()
}
