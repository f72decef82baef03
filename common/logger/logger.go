package logger

import (
	"os"
	"sync"

	"github.com/Laisky/zap"
	"github.com/Laisky/zap/zapcore"
)

// Logger is the process-wide structured logger. It is safe for concurrent use
// and is replaced exactly once by Setup before any service starts.
var Logger *zap.Logger

var setupOnce sync.Once

func init() {
	// A conservative default so packages can log before Setup runs
	// (for example during config loading failures).
	Logger = newLogger(false)
}

// Setup initializes the global logger. Debug mode switches to development
// encoding with stacktraces on warnings.
func Setup(debug bool) {
	setupOnce.Do(func() {
		Logger = newLogger(debug)
	})
}

func newLogger(debug bool) *zap.Logger {
	level := zap.InfoLevel
	if debug || os.Getenv("ULTRA_MCP_DEBUG") != "" {
		level = zap.DebugLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.TimeKey = "ts"

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core, zap.AddCaller())
}
