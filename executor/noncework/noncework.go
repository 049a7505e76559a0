// Package noncework spawns and parses the opaque nonce-search subprocess.
// Process spawning has no third-party analogue worth reaching for in this
// stack, so this is one of the few places the implementation leans on
// os/exec directly.
package noncework

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/klaytn/kale-pool/internal/errkind"
	"github.com/klaytn/kale-pool/internal/log"
)

var logger = log.NewModuleLogger(log.NonceWork)

// Result is the parsed final line of subprocess stdout.
type Result struct {
	Nonce uint64
	Hash  string
	Zeros int
}

// Runner spawns the nonce-search binary with its expected argument
// contract.
type Runner struct {
	BinaryPath string
	Timeout    time.Duration
}

// NewRunner returns a Runner against binaryPath, defaulting Timeout to a
// 120s subprocess read timeout.
func NewRunner(binaryPath string) *Runner {
	return &Runner{BinaryPath: binaryPath, Timeout: 120 * time.Second}
}

// Search runs one nonce-search attempt for (farmerHex, blockIndex,
// entropyHex, nonceCount), parsing the last stdout line as
// `[nonce, hash_hex]` and counting leading hex zeros.
func (r *Runner) Search(ctx context.Context, farmerHex string, blockIndex int64, entropyHex string, nonceCount int) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.BinaryPath,
		"--farmer-hex", farmerHex,
		"--index", fmt.Sprint(blockIndex),
		"--entropy-hex", entropyHex,
		"--nonce-count", fmt.Sprint(nonceCount),
	)
	logger.Debug("spawning nonce search", "block", blockIndex, "nonce_count", nonceCount)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, errkind.Wrap(errkind.KindSubprocessFailure, err, "noncework: stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return Result{}, errkind.Wrap(errkind.KindSubprocessFailure, err, "noncework: start")
	}

	var lastLine string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lastLine = line
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return Result{}, errkind.New(errkind.KindSubprocessFailure, "noncework: timed out")
	}
	if waitErr != nil {
		return Result{}, errkind.Wrap(errkind.KindSubprocessFailure, waitErr, "noncework: process exited non-zero")
	}
	if lastLine == "" {
		return Result{}, errkind.New(errkind.KindSubprocessFailure, "noncework: no output")
	}

	var pair [2]string
	if err := json.Unmarshal([]byte(lastLine), &pair); err != nil {
		return Result{}, errkind.Wrap(errkind.KindSubprocessFailure, err, "noncework: malformed final line")
	}
	var nonce uint64
	if _, err := fmt.Sscan(pair[0], &nonce); err != nil {
		return Result{}, errkind.Wrap(errkind.KindSubprocessFailure, err, "noncework: malformed nonce")
	}
	hash := pair[1]

	return Result{Nonce: nonce, Hash: hash, Zeros: leadingHexZeros(hash)}, nil
}

func leadingHexZeros(hash string) int {
	n := 0
	for _, r := range hash {
		if r != '0' {
			break
		}
		n++
	}
	return n
}
