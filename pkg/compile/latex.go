package compile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
)

// LatexService compiles with a local pdflatex in a scratch directory
type LatexService struct {
	// Path to pdflatex. Empty means look it up on PATH.
	Path string
	// WorkDir holds the per-compile scratch directories. Empty means os.TempDir.
	WorkDir string
	// Passes is how many times pdflatex runs; references settle on the second pass.
	Passes int
}

func NewLatexService(path, workDir string) *LatexService {
	return &LatexService{Path: path, WorkDir: workDir, Passes: 2}
}

const jobName = "resume"

func (s *LatexService) Compile(ctx context.Context, source string) (Result, error) {
	bin := s.Path
	if bin == "" {
		found, err := exec.LookPath("pdflatex")
		if err != nil {
			return Result{Error: "pdflatex not found. Please install a LaTeX distribution."}, nil
		}
		bin = found
	}

	dir, err := os.MkdirTemp(s.WorkDir, "compile-")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			glog.Warningf("[latex]cleanup %s = %s", dir, err)
		}
	}()

	if err := os.WriteFile(filepath.Join(dir, jobName+".tex"), []byte(source), 0o600); err != nil {
		return Result{}, fmt.Errorf("failed to write source: %w", err)
	}

	passes := s.Passes
	if passes <= 0 {
		passes = 1
	}
	var output bytes.Buffer
	for i := 0; i < passes; i++ {
		output.Reset()
		cmd := exec.CommandContext(ctx, bin, "-interaction=nonstopmode", "-halt-on-error", jobName+".tex")
		cmd.Dir = dir
		cmd.Stdout = &output
		cmd.Stderr = &output
		runErr := cmd.Run()
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		var exitErr *exec.ExitError
		if runErr != nil && !errors.As(runErr, &exitErr) {
			return Result{}, fmt.Errorf("failed to run pdflatex: %w", runErr)
		}
		if runErr != nil {
			break
		}
	}

	pdf, err := os.ReadFile(filepath.Join(dir, jobName+".pdf"))
	if err != nil {
		msg := firstLatexError(output.String())
		if msg == "" {
			msg = "PDF compilation failed"
		}
		return Result{Error: msg}, nil
	}
	return Result{Success: true, Artifact: EncodeArtifact(pdf)}, nil
}

// EncodeArtifact wraps PDF bytes as a data URL
func EncodeArtifact(pdf []byte) string {
	return "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf)
}

// firstLatexError returns the first "! ..." line of a TeX log without the bang
// and trailing period, e.g. "Undefined control sequence".
func firstLatexError(log string) string {
	scanner := bufio.NewScanner(strings.NewReader(log))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "! ") {
			return strings.TrimSuffix(strings.TrimSpace(line[2:]), ".")
		}
	}
	return ""
}

var _ Service = (*LatexService)(nil)
