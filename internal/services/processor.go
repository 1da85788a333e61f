package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result describes one processed file
type Result struct {
	Path     string
	Size     int64
	Digest   string
	Duration time.Duration
}

// Processor performs the per-file work of a scan. The context is cancelled
// only when the process shuts down, never by a stop request.
type Processor interface {
	Process(ctx context.Context, path string) (Result, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, path string) (Result, error)

// Process implements Processor
func (f ProcessorFunc) Process(ctx context.Context, path string) (Result, error) {
	return f(ctx, path)
}

// HashProcessor computes the SHA-256 digest of each file
type HashProcessor struct{}

// NewHashProcessor creates the built-in processor
func NewHashProcessor() *HashProcessor {
	return &HashProcessor{}
}

// Process implements Processor
func (p *HashProcessor) Process(ctx context.Context, path string) (Result, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, &ctxReader{ctx: ctx, r: f})
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Result{
		Path:     path,
		Size:     n,
		Digest:   hex.EncodeToString(h.Sum(nil)),
		Duration: time.Since(start),
	}, nil
}

// ctxReader stops reading once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// CommandProcessor runs an external command once per file, with the file
// path appended as the last argument. The first field of stdout is taken as
// the digest.
type CommandProcessor struct {
	binaryPath string
	args       []string
}

// NewCommandProcessor parses a command line such as "sha256sum" or
// "b3sum --no-names"
func NewCommandProcessor(command string) (*CommandProcessor, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty process command")
	}
	return &CommandProcessor{
		binaryPath: fields[0],
		args:       fields[1:],
	}, nil
}

// CheckInstalled verifies that the command can be found
func (p *CommandProcessor) CheckInstalled() error {
	if _, err := exec.LookPath(p.binaryPath); err != nil {
		return fmt.Errorf("%s not found or not executable: %w", p.binaryPath, err)
	}
	return nil
}

// Process implements Processor
func (p *CommandProcessor) Process(ctx context.Context, path string) (Result, error) {
	start := time.Now()

	info, err := os.Stat(path)
	if err != nil {
		return Result{}, err
	}

	args := append(append([]string{}, p.args...), path)
	cmd := exec.CommandContext(ctx, p.binaryPath, args...)

	output, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("%s exited with error: %w", p.binaryPath, err)
	}

	var digest string
	if fields := strings.Fields(string(output)); len(fields) > 0 {
		digest = fields[0]
	}

	return Result{
		Path:     path,
		Size:     info.Size(),
		Digest:   digest,
		Duration: time.Since(start),
	}, nil
}
