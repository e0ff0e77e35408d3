package upload

import "sync"

// Progress is a snapshot of an upload. It is advisory only.
type Progress struct {
	UploadID   string
	Phase      Phase
	Total      int
	Completed  int
	Failed     int
	Percentage float64

	// Set for chunked uploads.
	CurrentBatch int
	TotalBatches int
}

// Tracker accumulates Progress and reports every change to a callback.
// A nil *Tracker ignores all updates.
type Tracker struct {
	mu         sync.Mutex
	progress   Progress
	onProgress func(Progress)
}

func NewTracker(uploadID string, total int, onProgress func(Progress)) *Tracker {
	return &Tracker{
		progress: Progress{
			UploadID: uploadID,
			Total:    total,
		},
		onProgress: onProgress,
	}
}

func (t *Tracker) Snapshot() Progress {
	if t == nil {
		return Progress{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

func (t *Tracker) SetPhase(phase Phase) {
	t.update(func(p *Progress) {
		p.Phase = phase
		if phase == PhaseDone {
			p.Percentage = 100
		}
	})
}

func (t *Tracker) SetBatch(current, total int) {
	t.update(func(p *Progress) {
		p.CurrentBatch = current
		p.TotalBatches = total
	})
}

func (t *Tracker) BlobCreated() {
	t.update(func(p *Progress) {
		p.Completed++
	})
}

func (t *Tracker) BlobFailed() {
	t.update(func(p *Progress) {
		p.Failed++
	})
}

func (t *Tracker) update(fn func(p *Progress)) {
	if t == nil {
		return
	}

	t.mu.Lock()
	fn(&t.progress)
	if t.progress.Total > 0 && t.progress.Phase != PhaseDone {
		t.progress.Percentage = float64(t.progress.Completed) * 100 / float64(t.progress.Total)
	}
	snapshot := t.progress
	onProgress := t.onProgress
	t.mu.Unlock()

	if onProgress != nil {
		onProgress(snapshot)
	}
}
