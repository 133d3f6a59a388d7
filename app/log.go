// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"flintwallet.org/flint/wallet"
	"github.com/jrick/logrotate/rotator"
)

const maxLogRolls = 16

// logWriter implements an io.Writer that outputs to a rotating log file.
type logWriter struct {
	*rotator.Rotator
	stdout bool
}

// Write writes the data in p to the log file.
func (w logWriter) Write(p []byte) (n int, err error) {
	if w.stdout {
		os.Stdout.Write(p)
	}
	return w.Rotator.Write(p)
}

// InitLogging initializes a rotating file logger writing to logFilename,
// with roll files in the same directory. The returned close function should
// be called on application shutdown.
func InitLogging(logFilename, lvl string, stdout, utc bool) (lm *wallet.LoggerMaker, closeFn func(), err error) {
	logDirectory := filepath.Dir(logFilename)
	if err := os.MkdirAll(logDirectory, 0700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logRotator, err := rotator.New(logFilename, 32*1024, false, maxLogRolls)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	lm, err = wallet.NewLoggerMaker(&logWriter{logRotator, stdout}, lvl, utc)
	if err != nil {
		logRotator.Close()
		return nil, nil, fmt.Errorf("failed to create logger maker: %w", err)
	}
	return lm, func() {
		logRotator.Close()
	}, nil
}
