// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/crosswin/xwin/internal/scheduler"
)

// Reporter receives package state transitions from the scheduler and
// renders them for the user, either as an interactive bubbletea
// program on a real terminal or as plain log lines otherwise.
type Reporter interface {
	OnStatus(key string, state scheduler.State, err error)
	Start(total int)
	Stop()
}

// NewReporter picks an interactive or plain reporter based on whether
// out is a terminal and --json wasn't requested. JSON output disables
// the progress display entirely: a machine consumer wants one parsable
// stream, not an animated one interleaved with it.
func NewReporter(out *os.File, logger *slog.Logger, jsonOutput bool) Reporter {
	if jsonOutput || !isatty.IsTerminal(out.Fd()) {
		return &plainReporter{logger: logger}
	}
	if termenv.NewOutput(out).ColorProfile() == termenv.Ascii {
		// A terminal with no color support at all isn't worth driving a
		// bubbletea program for; the plain line-per-transition log reads
		// fine without styling.
		return &plainReporter{logger: logger}
	}

	width := 80
	if w, _, err := term.GetSize(int(out.Fd())); err == nil && w > 0 {
		width = w
	}
	return &ttyReporter{out: out, logger: logger, width: width}
}

// plainReporter logs one line per transition, for non-interactive
// output (redirected to a file, CI, or --json runs where a structured
// logger already owns stderr).
type plainReporter struct {
	logger *slog.Logger
	mu     sync.Mutex
	total  int
	done   int
}

func (r *plainReporter) Start(total int) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

func (r *plainReporter) Stop() {}

func (r *plainReporter) OnStatus(key string, state scheduler.State, err error) {
	if err != nil {
		r.logger.Error("package failed", "package", key, "state", state.String(), "error", err)
		return
	}
	if state == scheduler.Done {
		r.mu.Lock()
		r.done++
		done, total := r.done, r.total
		r.mu.Unlock()
		r.logger.Info("package done", "package", key, "progress", fmt.Sprintf("%d/%d", done, total))
		return
	}
	r.logger.Debug("package transitioned", "package", key, "state", state.String())
}

// ttyReporter drives a bubbletea program showing one line per package
// with its current pipeline stage and an overall progress bar, styled
// with lipgloss and colored according to the terminal's detected color
// profile.
type ttyReporter struct {
	out    *os.File
	logger *slog.Logger
	prog   *tea.Program
	done   chan struct{}
	width  int
}

type statusMsg struct {
	key   string
	state scheduler.State
	err   error
}

type progressModel struct {
	order   []string
	states  map[string]scheduler.State
	errs    map[string]error
	total   int
	bar     progress.Model
	failedN int
	doneN   int
	width   int
}

var (
	styleDone   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleActive = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

func newProgressModel(total, width int) progressModel {
	return progressModel{
		states: make(map[string]scheduler.State),
		errs:   make(map[string]error),
		total:  total,
		bar:    progress.New(progress.WithDefaultGradient()),
		width:  width,
	}
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		if _, ok := m.states[msg.key]; !ok {
			m.order = append(m.order, msg.key)
			sort.Strings(m.order)
		}
		m.states[msg.key] = msg.state
		if msg.err != nil {
			m.errs[msg.key] = msg.err
			m.failedN++
		} else if msg.state == scheduler.Done {
			m.doneN++
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m progressModel) View() string {
	var b []byte
	frac := 0.0
	if m.total > 0 {
		frac = float64(m.doneN) / float64(m.total)
	}
	b = append(b, []byte(m.bar.ViewAs(frac))...)
	b = append(b, '\n')
	for _, key := range m.order {
		state := m.states[key]
		var line string
		switch {
		case m.errs[key] != nil:
			line = styleFailed.Render(fmt.Sprintf("%s  %s  %v", key, state.String(), m.errs[key]))
		case state == scheduler.Done:
			line = styleDone.Render(fmt.Sprintf("%s  %s", key, state.String()))
		default:
			line = styleActive.Render(fmt.Sprintf("%s  %s", key, state.String()))
		}
		if m.width > 0 {
			line = ansi.Truncate(line, m.width, "…")
		}
		b = append(b, []byte(line)...)
		b = append(b, '\n')
	}
	b = append(b, []byte(styleMuted.Render(fmt.Sprintf("%d/%d done, %d failed", m.doneN, m.total, m.failedN)))...)
	b = append(b, '\n')
	return string(b)
}

func (r *ttyReporter) Start(total int) {
	model := newProgressModel(total, r.width)
	r.prog = tea.NewProgram(model, tea.WithOutput(r.out))
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		if _, err := r.prog.Run(); err != nil {
			r.logger.Error("progress display exited", "error", err)
		}
	}()
}

func (r *ttyReporter) OnStatus(key string, state scheduler.State, err error) {
	if r.prog == nil {
		return
	}
	r.prog.Send(statusMsg{key: key, state: state, err: err})
}

func (r *ttyReporter) Stop() {
	if r.prog == nil {
		return
	}
	r.prog.Quit()
	<-r.done
}

// formatSize renders a byte count the way "xwin list" shows payload
// sizes: humanized, not raw bytes.
func formatSize(n int64) string {
	return humanize.Bytes(uint64(n))
}
