// Package log is the structured, leveled logger used by every component of the
// agent. It intentionally mirrors the call shape seen across the codebase this
// project grew out of: Debug/Info/Warn/Error/Crit with alternating key/value
// pairs, e.g. log.Info("dump file created", "path", path, "pid", pid).
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging severity.
type Lvl int32

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
		return "UNKNOWN"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgRed, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgMagenta),
}

// Logger emits leveled, key/value structured records tagged with a component
// name, e.g. "writer", "ingest", "agent".
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	New(component string) Logger
}

type logger struct {
	component string
}

var (
	level  = int32(LvlInfo)
	out    io.Writer
	useClr bool
	mu     sync.Mutex
)

func init() {
	if lv := os.Getenv("JITDUMP_AGENT_LOG_LEVEL"); lv != "" {
		SetLevelName(lv)
	}
	initOutput()
}

func initOutput() {
	dest := os.Getenv("JITDUMP_AGENT_LOG")
	switch dest {
	case "", "stderr":
		out = colorable.NewColorableStderr()
		useClr = isatty.IsTerminal(os.Stderr.Fd()) && os.Getenv("NO_COLOR") == ""
	case "stdout":
		out = colorable.NewColorableStdout()
		useClr = isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("NO_COLOR") == ""
	default:
		f, err := os.OpenFile(dest, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			out = os.Stderr
			useClr = false
			return
		}
		out = f
		useClr = false
	}
}

// SetLevelName parses one of crit/error/warn/info/debug/trace and sets the
// process-wide minimum log level.
func SetLevelName(name string) {
	switch strings.ToLower(name) {
	case "crit", "critical":
		SetLevel(LvlCrit)
	case "error":
		SetLevel(LvlError)
	case "warn", "warning":
		SetLevel(LvlWarn)
	case "info":
		SetLevel(LvlInfo)
	case "debug":
		SetLevel(LvlDebug)
	case "trace":
		SetLevel(LvlTrace)
	}
}

// SetLevel sets the process-wide minimum log level.
func SetLevel(l Lvl) { atomic.StoreInt32(&level, int32(l)) }

// Root returns the unnamed root logger.
func Root() Logger { return logger{} }

// New returns a Logger tagged with component, e.g. log.New("writer").
func New(component string) Logger { return logger{component: component} }

func (l logger) New(component string) Logger {
	if l.component == "" {
		return logger{component: component}
	}
	return logger{component: l.component + "." + component}
}

func (l logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l logger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

func (l logger) write(lvl Lvl, msg string, ctx []interface{}) {
	if lvl > Lvl(atomic.LoadInt32(&level)) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if out == nil {
		initOutput()
	}

	var b strings.Builder
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	lvlStr := lvl.String()
	if useClr {
		if c, ok := levelColor[lvl]; ok {
			lvlStr = c.Sprint(lvl.String())
		}
	}
	fmt.Fprintf(&b, "%s[%s] %s", lvlStr, ts, msg)
	if l.component != "" {
		fmt.Fprintf(&b, " component=%s", l.component)
	}
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(&b, " %v=%v", ctx[i], formatValue(ctx[i+1]))
	}
	if len(ctx)%2 == 1 {
		fmt.Fprintf(&b, " %v=MISSING", ctx[len(ctx)-1])
	}
	if c := caller(); c != "" {
		fmt.Fprintf(&b, " (%s)", c)
	}
	b.WriteByte('\n')
	io.WriteString(out, b.String())
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// caller resolves the first frame outside this package, matching the
// call-site location the way stack-aware loggers annotate records.
func caller() string {
	cs := stack.Trace().TrimRuntime()
	for _, c := range cs {
		s := fmt.Sprintf("%+v", c)
		if !strings.Contains(s, "internal/log") {
			return s
		}
	}
	return ""
}
