// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wallet

import (
	"fmt"
	"io"
	"strings"

	"github.com/decred/slog"
)

// Logger is a logger. Every component constructor accepts a Logger, and all
// logging should take place through it. A Logger can spawn subsystem loggers
// for the components it composes.
type Logger interface {
	slog.Logger
	// SubLogger creates a logger for a subsystem of this logger's
	// subsystem, named "parent[name]".
	SubLogger(name string) Logger
}

// logger contains the slog.Logger and the data needed to spawn subloggers.
type logger struct {
	slog.Logger
	name    string
	levels  map[string]slog.Level
	backend *slog.Backend
}

// SubLogger creates a new Logger for the subsystem with the given name. The
// sublogger starts at the parent's level, but an explicitly configured level
// for the subsystem takes precedence.
func (lgr *logger) SubLogger(name string) Logger {
	combinedName := fmt.Sprintf("%s[%s]", lgr.name, name)
	newLgr := lgr.backend.Logger(combinedName)
	newLgr.SetLevel(lgr.Level())
	if lvl, found := lgr.levels[name]; found {
		newLgr.SetLevel(lvl)
	}
	return &logger{
		Logger:  newLgr,
		name:    combinedName,
		levels:  lgr.levels,
		backend: lgr.backend,
	}
}

// LoggerMaker allows creation of new log subsystems with predefined levels.
type LoggerMaker struct {
	*slog.Backend
	DefaultLevel slog.Level
	Levels       map[string]slog.Level
}

// NewLoggerMaker parses the debug level string into a new *LoggerMaker. The
// debugLevel string can set a single verbosity for the entire system ("trace",
// "debug", "info", "warn", "error", "critical") or individual levels for
// subsystems ("CORE=debug,STORE=trace").
func NewLoggerMaker(writer io.Writer, debugLevel string, utc bool) (*LoggerMaker, error) {
	var flags uint32
	if utc {
		flags |= slog.LUTC
	}
	lm := &LoggerMaker{
		Backend:      slog.NewBackend(writer, slog.WithFlags(flags)),
		DefaultLevel: slog.LevelDebug,
		Levels:       make(map[string]slog.Level),
	}
	if debugLevel == "" {
		return lm, nil
	}

	// When the level string has no delimiters, treat it as the log level for
	// all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		lvl, ok := slog.LevelFromString(debugLevel)
		if !ok {
			return nil, fmt.Errorf("the specified debug level [%v] is invalid", debugLevel)
		}
		lm.DefaultLevel = lvl
		return lm, nil
	}

	// Split the level string into subsystem/level pairs and validate each.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		fields := strings.Split(logLevelPair, "=")
		if len(fields) != 2 {
			return nil, fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%v]", logLevelPair)
		}
		subsysID, logLevel := fields[0], fields[1]
		lvl, ok := slog.LevelFromString(logLevel)
		if !ok {
			return nil, fmt.Errorf("the specified debug level [%v] is invalid", logLevel)
		}
		lm.Levels[subsysID] = lvl
	}
	return lm, nil
}

// SetLevelsFromMap sets the logging level of the subsystems that are keys in
// the provided map, for any subsystem without an explicitly configured level.
func (lm *LoggerMaker) SetLevelsFromMap(lvls map[string]slog.Level) {
	for name, lvl := range lvls {
		if _, ok := lm.Levels[name]; !ok {
			lm.Levels[name] = lvl
		}
	}
}

// Logger creates a named Logger at the LoggerMaker's default or configured
// subsystem level.
func (lm *LoggerMaker) Logger(name string) Logger {
	return lm.NewLogger(name)
}

// NewLogger creates a new Logger for the subsystem with the given name. If a
// log level is specified, it is used for the Logger. Otherwise any configured
// subsystem level, or the DefaultLevel, is used.
func (lm *LoggerMaker) NewLogger(name string, level ...slog.Level) Logger {
	lvl := lm.DefaultLevel
	if l, ok := lm.Levels[name]; ok {
		lvl = l
	}
	if len(level) > 0 {
		lvl = level[0]
	}
	lgr := lm.Backend.Logger(name)
	lgr.SetLevel(lvl)
	return &logger{
		Logger:  lgr,
		name:    name,
		levels:  lm.Levels,
		backend: lm.Backend,
	}
}

// Disabled is a Logger that never outputs anything. Useful for tests.
var Disabled Logger = &logger{
	Logger:  slog.Disabled,
	backend: slog.NewBackend(io.Discard),
}
