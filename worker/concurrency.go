package worker

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/xraph/taskq"
)

// ParseConcurrency resolves a concurrency setting against the number of
// CPUs:
//
//	""     0, run a single runner in the calling goroutine
//	"n"    n runners for n > 0, 0 for n == 0
//	"-n"   NumCPU - n runners, at least 1
//	"0.5"  int(NumCPU * 0.5) runners, at least 1; fractions must be in [0, 1]
//
// A value with a decimal point is always a fraction, so "1.0" means every
// CPU while "1" means one runner.
func ParseConcurrency(s string) (int, error) {
	return resolveConcurrency(s, runtime.NumCPU())
}

func resolveConcurrency(s string, numCPU int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: concurrency %q: %w", taskq.ErrInvalidConfig, s, err)
		}
		if f < 0 || f > 1 {
			return 0, fmt.Errorf("%w: concurrency fraction %q must be in [0, 1]", taskq.ErrInvalidConfig, s)
		}
		return max(int(float64(numCPU)*f), 1), nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: concurrency %q: %w", taskq.ErrInvalidConfig, s, err)
	}
	if n < 0 {
		return max(numCPU+n, 1), nil
	}
	return n, nil
}
