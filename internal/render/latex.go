// Package render turns completion text into PDF artifacts via a pdflatex
// subprocess. Rendering is best-effort: callers fall back to text-only
// delivery when it fails.
package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LaTeX renders documents into outDir. Each pdflatex run is bounded by
// timeout and killed on expiry.
type LaTeX struct {
	outDir  string
	timeout time.Duration
	log     zerolog.Logger
}

// NewLaTeX creates a renderer writing artifacts under outDir.
func NewLaTeX(outDir string, timeout time.Duration, log zerolog.Logger) (*LaTeX, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &LaTeX{outDir: outDir, timeout: timeout, log: log}, nil
}

// Plan renders a study-plan document and returns the local PDF path.
func (l *LaTeX) Plan(ctx context.Context, text string) (string, error) {
	return l.compile(ctx, "plan", buildPlanDocument(text))
}

// Tasks renders a task set. parts alternates task and solution text; a
// dangling final task without a solution is rendered on its own.
func (l *LaTeX) Tasks(ctx context.Context, parts []string) (string, error) {
	return l.compile(ctx, "tasks", buildTasksDocument(parts))
}

// Report renders a homework-check report.
func (l *LaTeX) Report(ctx context.Context, text string) (string, error) {
	return l.compile(ctx, "report", buildReportDocument(text))
}

func (l *LaTeX) compile(ctx context.Context, name, content string) (string, error) {
	tmpdir, err := os.MkdirTemp("", "riverai-"+name+"-*")
	if err != nil {
		return "", fmt.Errorf("tempdir: %w", err)
	}
	defer os.RemoveAll(tmpdir)

	texPath := filepath.Join(tmpdir, name+".tex")
	if err := os.WriteFile(texPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write tex: %w", err)
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, "pdflatex", "-interaction=batchmode", texPath)
	cmd.Dir = tmpdir
	if out, err := cmd.CombinedOutput(); err != nil {
		l.log.Warn().Str("doc", name).Err(err).Str("output", outputTail(out)).Msg("pdflatex failed")
		return "", fmt.Errorf("pdflatex: %w", err)
	}

	pdfPath := filepath.Join(tmpdir, name+".pdf")
	if _, err := os.Stat(pdfPath); err != nil {
		return "", fmt.Errorf("pdf missing after compile: %w", err)
	}
	finalPath := filepath.Join(l.outDir, fmt.Sprintf("%s_%s.pdf", name, uuid.NewString()))
	if err := os.Rename(pdfPath, finalPath); err != nil {
		// Rename fails across filesystems; copy instead.
		data, rerr := os.ReadFile(pdfPath)
		if rerr != nil {
			return "", fmt.Errorf("read pdf: %w", rerr)
		}
		if werr := os.WriteFile(finalPath, data, 0o644); werr != nil {
			return "", fmt.Errorf("copy pdf: %w", werr)
		}
	}
	return finalPath, nil
}

// outputTail keeps the end of a pdflatex transcript, where the error lives.
func outputTail(out []byte) string {
	const max = 2048
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}

func buildPlanDocument(text string) string {
	var b strings.Builder
	b.WriteString("\\documentclass{article}\n\\begin{document}\n\\section*{Study Plan}\n")
	b.WriteString(escapeLaTeX(text))
	b.WriteString("\n\\end{document}\n")
	return b.String()
}

func buildTasksDocument(parts []string) string {
	var b strings.Builder
	b.WriteString("\\documentclass{article}\n\\usepackage{enumitem}\n\\begin{document}\n\\section*{Generated Tasks}\n")
	b.WriteString("\\begin{enumerate}[leftmargin=*]\n")
	for i := 0; i < len(parts); i += 2 {
		task := strings.TrimSpace(parts[i])
		if task == "" && i+1 >= len(parts) {
			continue
		}
		b.WriteString("\\item ")
		b.WriteString(escapeLaTeX(task))
		b.WriteString("\n")
		if i+1 < len(parts) {
			solution := strings.TrimSpace(parts[i+1])
			b.WriteString("\\newline \\textbf{Solution:} ")
			b.WriteString(escapeLaTeX(solution))
			b.WriteString("\n")
		}
	}
	b.WriteString("\\end{enumerate}\n\\end{document}\n")
	return b.String()
}

func buildReportDocument(text string) string {
	var b strings.Builder
	b.WriteString("\\documentclass{article}\n\\begin{document}\n\\section*{Homework Check Report}\n")
	b.WriteString(escapeLaTeX(text))
	b.WriteString("\n\\end{document}\n")
	return b.String()
}

var latexEscaper = strings.NewReplacer(
	"\\", "\\textbackslash{}",
	"%", "\\%",
	"&", "\\&",
	"#", "\\#",
	"$", "\\$",
	"_", "\\_",
	"{", "\\{",
	"}", "\\}",
	"~", "\\textasciitilde{}",
	"^", "\\textasciicircum{}",
)

func escapeLaTeX(s string) string {
	return latexEscaper.Replace(s)
}
