package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/ocuroot/gitdrop/upload"
)

// UploadTui shows upload progress. Without a terminal it falls back to
// log lines and a plain summary.
type UploadTui struct {
	title   string
	model   *UploadModel
	program *tea.Program
	tuiDone chan struct{}
}

func (u *UploadTui) Update(p upload.Progress) {
	if u.program == nil {
		log.Info("Upload progress", "phase", p.Phase, "completed", p.Completed, "total", p.Total, "batch", p.CurrentBatch, "batches", p.TotalBatches)
		return
	}
	u.program.Send(ProgressEvent{Progress: p})
}

// Finish renders the final state and releases the terminal.
func (u *UploadTui) Finish(result *upload.Result, err error) error {
	if u.program == nil {
		fmt.Print(Summary(u.title, result, err))
		return nil
	}

	// Only run this process once
	select {
	case <-u.tuiDone:
		return u.program.ReleaseTerminal()
	default:
	}

	u.program.Send(DoneEvent{Result: result, Err: err})
	<-u.tuiDone
	return u.program.ReleaseTerminal()
}

func StartUploadTui(title string, startInLogMode bool) *UploadTui {
	u := &UploadTui{title: title}
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return u
	}

	model := NewUploadModel(title)
	model.logMode = startInLogMode

	log.SetOutput(model.logBuf)
	log.SetReportCaller(true)

	p := tea.NewProgram(model)

	var tuiDone = make(chan struct{})
	go func() {
		if _, err := p.Run(); err != nil {
			fmt.Printf("TUI error: %v", err)
			os.Exit(1)
		}

		close(tuiDone)
	}()

	u.model = model
	u.program = p
	u.tuiDone = tuiDone
	return u
}
