package tracer

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// PauseEvent is published by the reader whenever the helper is intercepted
// (paused=true) or resumes (paused=false). Terminal is set only on the
// final, unrecoverable TracerError event (§4.I item 5).
type PauseEvent struct {
	Paused   bool
	Syscall  Syscall
	Terminal bool
	Input    string // "FINISH" on the terminal event, empty otherwise
}

// Target selects how the helper attaches: to an existing pid, or by
// launching a fresh command (§4.I start).
type Target struct {
	IsPID bool
	PID   int
	Cmd   string
}

// Controller owns the helper subprocess and drives its line protocol
// (§4.I). One dedicated reader goroutine reads stdout/stderr; writes to the
// helper's stdin happen only through Write, from whichever goroutine calls
// it — the reader itself writes only in response to SKIP/SETARG/SETRET.
type Controller struct {
	interceptorPath string
	log             *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr stderrPoller

	writeMu sync.Mutex

	filterMu sync.Mutex
	autoskip map[string]struct{}

	syscallMu sync.Mutex
	current   Syscall

	resume chan struct{}
	paused chan PauseEvent
}

// NewController returns a Controller that will spawn interceptorPath on
// Start.
func NewController(interceptorPath string, log *slog.Logger) *Controller {
	return &Controller{
		interceptorPath: interceptorPath,
		log:             log,
		autoskip:        make(map[string]struct{}),
		resume:          make(chan struct{}, 1),
		paused:          make(chan PauseEvent, 1),
	}
}

// Paused returns the channel on which pause/resume/terminal events are
// published, for a UI task to consume.
func (c *Controller) Paused() <-chan PauseEvent { return c.paused }

// Start spawns the interceptor helper against target and launches the
// reader goroutine (§4.I "start"). It execs the interceptor binary
// directly rather than through a shell, since the argument list is known
// up front and direct exec avoids a layer of shell quoting.
func (c *Controller) Start(target Target) error {
	args := []string{"-e", target.Cmd}
	if target.IsPID {
		args = []string{"-p", strconv.Itoa(target.PID)}
	}

	cmd := exec.Command(c.interceptorPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("tracer: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("tracer: stdout pipe: %w", err)
	}

	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("tracer: stderr pipe: %w", err)
	}
	cmd.Stderr = stderrWrite

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("tracer: start interceptor: %w", err)
	}
	stderrWrite.Close()

	if err := setNonblock(stderrRead); err != nil {
		c.log.Warn("set stderr non-blocking failed", "err", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.stdout = bufio.NewReader(stdout)
	c.stderr = &fileStderrPoller{f: stderrRead}

	go c.interact()
	return nil
}

// stderrPoller reports whether a byte is available without blocking —
// abstracted so tests can simulate helper errors without a real pipe.
type stderrPoller interface {
	hasData() bool
}

// fileStderrPoller performs the non-blocking single-byte poll described in
// §4.I item 5.
type fileStderrPoller struct{ f *os.File }

func (p *fileStderrPoller) hasData() bool {
	var buf [1]byte
	n, err := p.f.Read(buf[:])
	return n > 0 && err == nil
}

// Write sends data to the helper's stdin, appending a trailing newline if
// absent (§4.I: "appends a trailing newline if absent").
func (c *Controller) Write(data string) error {
	if !strings.HasSuffix(data, "\n") {
		data += "\n"
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.log.Debug("writing to interceptor", "data", data)
	_, err := io.WriteString(c.stdin, data)
	return err
}

// Continue releases the single-slot resume signal (§4.I "continue()").
func (c *Controller) Continue() {
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

// AddFilter adds name to the autoskip set.
func (c *Controller) AddFilter(name string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.autoskip[name] = struct{}{}
}

// RemoveFilter removes name from the autoskip set; removing an absent name
// is a no-op.
func (c *Controller) RemoveFilter(name string) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	delete(c.autoskip, name)
}

func (c *Controller) filtered(name string) bool {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	_, ok := c.autoskip[name]
	return ok
}

// CurrentSyscall returns a snapshot of the syscall currently paused on, or
// being queried via SETARG/SETRET.
func (c *Controller) CurrentSyscall() Syscall {
	c.syscallMu.Lock()
	defer c.syscallMu.Unlock()
	return c.current
}

// SetArg overrides argument pos of the current syscall, e.g. in response to
// a UI edit while paused. Takes effect the next time the helper asks via
// SETARG<pos>.
func (c *Controller) SetArg(pos int, value string) error {
	if pos < 0 || pos > 5 {
		return fmt.Errorf("tracer: arg position %d out of range", pos)
	}
	c.syscallMu.Lock()
	defer c.syscallMu.Unlock()
	c.current.Args[pos].Value = value
	return nil
}

// SetRet overrides the current syscall's return value.
func (c *Controller) SetRet(value string) {
	c.syscallMu.Lock()
	defer c.syscallMu.Unlock()
	c.current.Ret = value
}

const (
	controlSkip   = "SKIP"
	controlSetArg = "SETARG"
	controlSetRet = "SETRET"
)

// interact is the reader goroutine (§4.I, §5 "single dedicated reader
// task"). It owns stdin writes; the only writes from other goroutines are
// none — Continue only signals resume, it never writes to the helper.
func (c *Controller) interact() {
	for {
		lines, control, err := c.readUntilControl()
		if err != nil {
			c.paused <- PauseEvent{Paused: true, Terminal: true, Input: "FINISH"}
			return
		}

		switch {
		case control == controlSkip:
			sc, err := ParseBlock(lines)
			if err != nil {
				c.log.Warn("parse syscall block failed", "err", err)
				continue
			}
			c.syscallMu.Lock()
			c.current = *sc
			c.syscallMu.Unlock()

			if c.filtered(sc.Name) {
				if err := c.Write("1"); err != nil {
					return
				}
				continue
			}
			if err := c.Write("0"); err != nil {
				return
			}

			c.paused <- PauseEvent{Paused: true, Syscall: c.CurrentSyscall()}
			<-c.resume
			c.paused <- PauseEvent{Paused: false, Syscall: c.CurrentSyscall()}

		case strings.HasPrefix(control, controlSetArg):
			pos, err := strconv.Atoi(control[len(controlSetArg):])
			if err != nil || pos < 0 || pos > 5 {
				c.log.Warn("malformed SETARG control line", "line", control)
				continue
			}
			sc := c.CurrentSyscall()
			if err := c.Write(sc.Args[pos].Value); err != nil {
				return
			}

		case control == controlSetRet:
			sc := c.CurrentSyscall()
			if err := c.Write(sc.Ret); err != nil {
				return
			}
		}
	}
}

// readUntilControl reads stdout lines until one begins with SKIP, SETARG,
// or SETRET, returning the preceding lines and the control line (trimmed,
// without its trailing newline). Any byte on stderr is a TracerError.
func (c *Controller) readUntilControl() (lines []string, control string, err error) {
	for {
		if c.stderr != nil && c.stderr.hasData() {
			return nil, "", fmt.Errorf("tracer: helper reported an error")
		}

		line, err := c.stdout.ReadString('\n')
		if err != nil {
			return nil, "", fmt.Errorf("tracer: read interceptor stdout: %w", err)
		}
		line = strings.TrimRight(line, "\n")

		if strings.HasPrefix(line, controlSkip) ||
			strings.HasPrefix(line, controlSetArg) ||
			strings.HasPrefix(line, controlSetRet) {
			return lines, line, nil
		}
		lines = append(lines, line)
	}
}
