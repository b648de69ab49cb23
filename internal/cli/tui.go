package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/matzehuels/packscan/pkg/pipeline"
)

// reporter displays batch progress.
type reporter interface {
	Update(p pipeline.Progress)
	Notify(msg string)
	Stop()
}

// newReporter returns a live progress line when w is a terminal, and a
// reporter that logs every 10% otherwise.
func newReporter(ctx context.Context, w io.Writer, logger *log.Logger) reporter {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return startTeaReporter(ctx, f, logger)
	}
	return &logReporter{logger: logger}
}

type nopReporter struct{}

func (nopReporter) Update(pipeline.Progress) {}
func (nopReporter) Notify(string)            {}
func (nopReporter) Stop()                    {}

// =============================================================================
// logReporter - progress for non-interactive output
// =============================================================================

type logReporter struct {
	mu     sync.Mutex
	logger *log.Logger
	done   int
	last   int // last logged decile
}

func (r *logReporter) Update(p pipeline.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Total == 0 || p.Done <= r.done {
		return
	}
	r.done = p.Done
	decile := p.Done * 10 / p.Total
	if decile <= r.last && p.Done < p.Total {
		return
	}
	r.last = decile
	r.logger.Info("progress", "command", p.Command, "done", p.Done, "total", p.Total, "failed", p.Failed)
}

func (r *logReporter) Notify(string) {}

func (r *logReporter) Stop() {}

// =============================================================================
// ProgressModel - live progress line
// =============================================================================

const progressWidth = 30

var (
	progressFullStyle  = lipgloss.NewStyle().Foreground(colorCyan)
	progressEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
)

type progressMsg pipeline.Progress

type noticeMsg string

// ProgressModel is the bubbletea model rendering one batch's progress.
type ProgressModel struct {
	Progress pipeline.Progress
	Notice   string
	Start    time.Time
	now      func() time.Time
}

// NewProgressModel creates a progress model for command.
func NewProgressModel(command string) ProgressModel {
	return ProgressModel{
		Progress: pipeline.Progress{Command: command},
		Start:    time.Now(),
		now:      time.Now,
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return nil
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		if msg.Done >= m.Progress.Done {
			m.Progress = pipeline.Progress(msg)
		}
	case noticeMsg:
		m.Notice = string(msg)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ProgressModel) View() string {
	p := m.Progress
	var b strings.Builder

	filled := 0
	if p.Total > 0 {
		filled = min(progressWidth, p.Done*progressWidth/p.Total)
	}
	b.WriteString(StyleTitle.Render(p.Command))
	b.WriteString(" ")
	b.WriteString(progressFullStyle.Render(strings.Repeat("█", filled)))
	b.WriteString(progressEmptyStyle.Render(strings.Repeat("░", progressWidth-filled)))
	b.WriteString(" ")
	b.WriteString(StyleNumber.Render(fmt.Sprintf("%d/%d", p.Done, p.Total)))
	if p.Failed > 0 {
		b.WriteString(StyleWarning.Render(fmt.Sprintf("  %d failed", p.Failed)))
	}
	if m.now != nil {
		b.WriteString(StyleDim.Render("  " + m.now().Sub(m.Start).Round(time.Second).String()))
	}
	if m.Notice != "" {
		b.WriteString("\n")
		b.WriteString(StyleDim.Render("  " + m.Notice))
	}
	b.WriteString("\n")
	return b.String()
}

// =============================================================================
// teaReporter - drives a ProgressModel program
// =============================================================================

type teaReporter struct {
	program *tea.Program
	logger  *log.Logger
	prevOut io.Writer
	done    chan struct{}
	once    sync.Once
}

// startTeaReporter runs the progress program on f. Log lines are routed
// through the program so they print above the progress line.
func startTeaReporter(ctx context.Context, f *os.File, logger *log.Logger) *teaReporter {
	p := tea.NewProgram(NewProgressModel(""),
		tea.WithContext(ctx),
		tea.WithOutput(f),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	r := &teaReporter{program: p, logger: logger, prevOut: f, done: make(chan struct{})}
	logger.SetOutput(programWriter{p})
	go func() {
		defer close(r.done)
		_, _ = p.Run()
	}()
	return r
}

func (r *teaReporter) Update(p pipeline.Progress) {
	r.program.Send(progressMsg(p))
}

func (r *teaReporter) Notify(msg string) {
	r.program.Send(noticeMsg(msg))
}

func (r *teaReporter) Stop() {
	r.once.Do(func() {
		r.program.Quit()
		<-r.done
		r.logger.SetOutput(r.prevOut)
	})
}

// programWriter prints each write above the running program's view.
type programWriter struct {
	p *tea.Program
}

func (w programWriter) Write(b []byte) (int, error) {
	w.p.Println(strings.TrimRight(string(b), "\n"))
	return len(b), nil
}
