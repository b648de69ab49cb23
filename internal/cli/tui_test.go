package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/packscan/pkg/pipeline"
)

func TestProgressModelUpdate(t *testing.T) {
	m := NewProgressModel("fetch")

	next, _ := m.Update(progressMsg{Command: "fetch", Done: 4, Total: 10, Failed: 1})
	m = next.(ProgressModel)
	if m.Progress.Done != 4 || m.Progress.Failed != 1 {
		t.Fatalf("Progress = %+v", m.Progress)
	}

	// Snapshots can arrive out of order from concurrent workers.
	next, _ = m.Update(progressMsg{Command: "fetch", Done: 3, Total: 10})
	m = next.(ProgressModel)
	if m.Progress.Done != 4 {
		t.Errorf("stale snapshot applied: %+v", m.Progress)
	}

	next, _ = m.Update(noticeMsg("rate limited"))
	m = next.(ProgressModel)
	if m.Notice != "rate limited" {
		t.Errorf("Notice = %q", m.Notice)
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("ctrl+c should quit")
	}
}

func TestProgressModelView(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := ProgressModel{
		Progress: pipeline.Progress{Command: "run", Done: 5, Total: 10, Failed: 2},
		Notice:   "waiting",
		Start:    start,
		now:      func() time.Time { return start.Add(90 * time.Second) },
	}

	view := m.View()
	for _, want := range []string{"run", "5/10", "2 failed", "1m30s", "waiting"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
	if got := strings.Count(view, "█"); got != progressWidth/2 {
		t.Errorf("filled cells = %d, want %d", got, progressWidth/2)
	}
}

func TestNewReporterOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := newReporter(context.Background(), &buf, log.New(&buf))
	if _, ok := r.(*logReporter); !ok {
		t.Fatalf("newReporter() = %T, want *logReporter", r)
	}
	r.Stop()
}
