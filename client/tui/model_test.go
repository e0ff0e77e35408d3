package tui

import (
	"errors"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ocuroot/gitdrop/git"
	"github.com/ocuroot/gitdrop/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadModelProgress(t *testing.T) {
	m := NewUploadModel("acme/demo")

	next, cmd := m.Update(ProgressEvent{Progress: upload.Progress{
		Phase:        upload.PhaseBlobs,
		Total:        10,
		Completed:    4,
		Percentage:   40,
		CurrentBatch: 2,
		TotalBatches: 3,
	}})
	assert.Nil(t, cmd)

	model := next.(*UploadModel)
	assert.Equal(t, 4, model.Progress.Completed)

	view := model.View()
	assert.Contains(t, view, "acme/demo")
	assert.Contains(t, view, "create blobs")
	assert.Contains(t, view, "4/10 files")
	assert.Contains(t, view, "batch 2/3")
}

func TestUploadModelLogMode(t *testing.T) {
	m := NewUploadModel("acme/demo")
	m.logBuf.WriteString("a log line\n")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	assert.Equal(t, "a log line\n", next.View())

	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	assert.NotEqual(t, "a log line\n", next.View())
}

func TestUploadModelSpinnerTick(t *testing.T) {
	m := NewUploadModel("acme/demo")
	before := m.Spinner.View()

	next, cmd := m.Update(spinner.TickMsg{ID: m.Spinner.ID()})
	assert.NotNil(t, cmd)
	assert.NotEqual(t, before, next.(*UploadModel).Spinner.View())
}

func TestUploadModelDone(t *testing.T) {
	m := NewUploadModel("acme/demo")

	result := &upload.Result{
		Success:   true,
		Branch:    "main",
		CommitSHA: "0123456789abcdef",
		CommitURL: "https://github.com/acme/demo/commit/0123456789abcdef",
		Commits:   []git.CommitRef{{SHA: "0123456789abcdef"}},
	}
	next, cmd := m.Update(DoneEvent{Result: result})
	require.NotNil(t, cmd)

	model := next.(*UploadModel)
	assert.True(t, model.Done)
	assert.Empty(t, model.View())
}

func TestSummary(t *testing.T) {
	ok := Summary("acme/demo", &upload.Result{
		Branch:    "main",
		CommitSHA: "0123456789abcdef",
		Commits:   make([]git.CommitRef, 3),
		CommitURL: "https://example.com/c",
	}, nil)
	assert.Contains(t, ok, "3 commits on main, head 0123456")
	assert.Contains(t, ok, "https://example.com/c")

	failed := Summary("acme/demo", nil, errors.New("boom"))
	assert.Contains(t, failed, "boom")
}

func TestUploadModelResize(t *testing.T) {
	m := NewUploadModel("Uploading")

	m.Update(tea.WindowSizeMsg{Width: 24, Height: 10})
	assert.Equal(t, 20, m.Bar.Width)

	m.Update(tea.WindowSizeMsg{Width: 200, Height: 10})
	assert.Equal(t, maxBarWidth, m.Bar.Width)
}
