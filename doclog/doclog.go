// Package doclog implements the single LogCallback hook of spec.md §6 on
// top of capnslog, the logging library the teacher package (etcd's mvcc)
// imports directly. Call sites keep the teacher's plog.Infof(...) idiom;
// output is routed through one process-wide hook instead of stderr, since
// "the core never writes to stdout/stderr outside this hook".
package doclog

import (
	"fmt"
	"sync"

	"github.com/coreos/pkg/capnslog"
)

// LogLevel mirrors spec.md §6's threshold enum.
type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warning
	Error
)

func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogCallback is the single sink the core ever writes through.
type LogCallback func(level LogLevel, message string)

var (
	mu        sync.Mutex
	callback  LogCallback
	threshold = Info
)

// SetCallback installs the process-wide log sink. A nil callback disables
// logging entirely (the default until one is installed).
func SetCallback(cb LogCallback) {
	mu.Lock()
	defer mu.Unlock()
	callback = cb
}

// SetLevel sets the minimum level that reaches the callback.
func SetLevel(l LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	threshold = l
}

func emit(level LogLevel, msg string) {
	mu.Lock()
	cb, th := callback, threshold
	mu.Unlock()
	if cb == nil || level < th {
		return
	}
	cb(level, msg)
}

// hookFormatter adapts capnslog's Formatter interface to call emit, so
// every capnslog.PackageLogger created by New() ends up routed through the
// single callback instead of a file/terminal.
type hookFormatter struct{}

func (hookFormatter) Format(pkg string, level capnslog.LogLevel, depth int, entries ...interface{}) {
	emit(fromCapnslog(level), pkg+": "+fmt.Sprint(entries...))
}

func (hookFormatter) Flush() {}

func fromCapnslog(l capnslog.LogLevel) LogLevel {
	switch {
	case l <= capnslog.ERROR:
		return Error
	case l <= capnslog.WARNING:
		return Warning
	case l <= capnslog.INFO:
		return Info
	default:
		return Debug
	}
}

func init() {
	capnslog.SetFormatter(hookFormatter{})
	capnslog.SetGlobalLogLevel(capnslog.DEBUG)
}

// PackageLogger is the per-package logger handed back by New, shaped like
// the teacher's "plog" package variable.
type PackageLogger struct {
	inner *capnslog.PackageLogger
}

// New returns a PackageLogger for pkg, e.g. doclog.New("store").
func New(pkg string) *PackageLogger {
	return &PackageLogger{inner: capnslog.NewPackageLogger("github.com/thistonyuncle/docstore", pkg)}
}

func (p *PackageLogger) Debugf(format string, args ...interface{})   { p.inner.Debugf(format, args...) }
func (p *PackageLogger) Infof(format string, args ...interface{})    { p.inner.Infof(format, args...) }
func (p *PackageLogger) Warningf(format string, args ...interface{}) { p.inner.Warningf(format, args...) }
func (p *PackageLogger) Errorf(format string, args ...interface{})   { p.inner.Errorf(format, args...) }

// Panicf logs at error level then panics, used for assertion failures per
// spec.md §7 ("Assertion failures... logged at error level... then raised
// as a fatal error").
func (p *PackageLogger) Panicf(format string, args ...interface{}) { p.inner.Panicf(format, args...) }
