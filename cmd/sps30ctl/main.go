/*
sps30ctl

Operates SPS30 particulate matter sensor on UART. Readings go to stdout,
one line per reading. Diagnostics go to stderr

Exit codes
0 stopped by signal
1 invalid usage or configuration
3 sensor did not respond to probe
*/
package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"sps30/lifecycle"
)

const (
	ExitOK          = 0
	ExitError       = 1
	ExitProbeFailed = 3
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, lifecycle.ErrProbeFailed):
		return ExitProbeFailed
	}
	return ExitError
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		logrus.WithError(err).Error("sps30ctl failed")
	}
	os.Exit(exitCode(err))
}
