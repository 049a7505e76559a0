// Package log provides the module-scoped leveled logger used throughout the
// pool coordinator, in the shape klaytn's own log package is consumed
// elsewhere in this tree: construct one per package with NewModuleLogger and
// call Info/Warn/Error with alternating key/value pairs.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
)

// Lvl is a logging severity level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "???"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgRed, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Module name constants, mirroring klaytn's log.ChainDataFetcher-style
// per-package identifiers.
const (
	Discoverer = "DISCOVERER"
	Executor   = "EXECUTOR"
	Settlement = "SETTLEMENT"
	Wallet     = "WALLET"
	Storage    = "STORAGE"
	EventBus   = "EVENTBUS"
	Scheduler  = "SCHEDULER"
	NonceWork  = "NONCEWORK"
	HTTPAPI    = "HTTPAPI"
	Bootstrap  = "BOOTSTRAP"
)

var (
	root      = LvlInfo
	rootMu    sync.RWMutex
	out       io.Writer = os.Stderr
	useColor            = color.NoColor == false
)

// SetLevel adjusts the process-wide minimum level that gets printed.
func SetLevel(l Lvl) {
	rootMu.Lock()
	defer rootMu.Unlock()
	root = l
}

// SetOutput redirects all logger output, primarily for tests.
func SetOutput(w io.Writer) {
	rootMu.Lock()
	defer rootMu.Unlock()
	out = w
}

func currentLevel() Lvl {
	rootMu.RLock()
	defer rootMu.RUnlock()
	return root
}

// Logger is a module-scoped leveled logger.
type Logger struct {
	module string
}

// NewModuleLogger returns a Logger tagged with the given module name.
func NewModuleLogger(module string) *Logger {
	return &Logger{module: module}
}

func (lg *Logger) log(lvl Lvl, msg string, ctx ...interface{}) {
	if lvl > currentLevel() {
		return
	}
	rootMu.RLock()
	w := out
	rootMu.RUnlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000")
	caller := ""
	if lvl <= LvlWarn {
		if c := stack.Caller(2); c != nil {
			caller = fmt.Sprintf(" %+v", c)
		}
	}

	levelTag := lvl.String()
	if useColor {
		if c, ok := levelColor[lvl]; ok {
			levelTag = c.Sprint(lvl.String())
		}
	}

	fmt.Fprintf(w, "%s [%s] %-5s %s%s", ts, lg.module, levelTag, msg, caller)
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(w, " %v=%v", ctx[i], ctx[i+1])
	}
	fmt.Fprintln(w)
}

func (lg *Logger) Trace(msg string, ctx ...interface{}) { lg.log(LvlTrace, msg, ctx...) }
func (lg *Logger) Debug(msg string, ctx ...interface{}) { lg.log(LvlDebug, msg, ctx...) }
func (lg *Logger) Info(msg string, ctx ...interface{})  { lg.log(LvlInfo, msg, ctx...) }
func (lg *Logger) Warn(msg string, ctx ...interface{})  { lg.log(LvlWarn, msg, ctx...) }
func (lg *Logger) Error(msg string, ctx ...interface{}) { lg.log(LvlError, msg, ctx...) }
func (lg *Logger) Crit(msg string, ctx ...interface{})  { lg.log(LvlCrit, msg, ctx...) }
