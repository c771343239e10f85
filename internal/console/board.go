package console

import (
	"sync"
	"time"

	"github.com/hugh/reconsole/internal/models"
)

// Region names the part of the display a notice belongs to.
type Region string

const (
	RegionForm      Region = "form"
	RegionScan      Region = "scan"
	RegionResults   Region = "results"
	RegionArtifacts Region = "artifacts"
	RegionRecent    Region = "recent"
	RegionTools     Region = "tools"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

type Notice struct {
	Level   NoticeLevel `json:"level"`
	Region  Region      `json:"region"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Sink receives everything the engine renders.
type Sink interface {
	// ShowScan makes v the tracked scan card: status from v, log reset to
	// the placeholder, results and artifacts hidden.
	ShowScan(v ScanView)
	// UpdateScan repaints status and, when v.Lines is non-nil, the log.
	UpdateScan(v ScanView)
	AppendLine(scanID string, line RenderedLine)
	SetSubmitting(busy bool)
	ShowResults(scanID string, cards []SummaryCard, message string)
	ShowArtifacts(scanID string, panel ArtifactsPanel)
	ShowFile(f OpenFile)
	ShowRecent(p RecentPanel)
	Notify(n Notice)
}

type ScanCard struct {
	Visible     bool           `json:"visible"`
	ScanID      string         `json:"scan_id"`
	Domain      string         `json:"domain"`
	ScanType    string         `json:"scan_type"`
	Status      StatusDisplay  `json:"status"`
	Lines       []RenderedLine `json:"lines"`
	ScrollToEnd bool           `json:"scroll_to_end"`
	Terminal    bool           `json:"terminal"`
}

type ResultsCard struct {
	Visible bool          `json:"visible"`
	ScanID  string        `json:"scan_id"`
	Cards   []SummaryCard `json:"cards,omitempty"`
	Message string        `json:"message,omitempty"`
}

type ArtifactsPanel struct {
	Visible bool                  `json:"visible"`
	Loading bool                  `json:"loading"`
	Files   []models.FileArtifact `json:"files,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type OpenFile struct {
	ScanID  string `json:"scan_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

type RecentPanel struct {
	Loaded bool                 `json:"loaded"`
	Scans  []models.ScanSummary `json:"scans"`
	Error  string               `json:"error,omitempty"`
}

// Snapshot is a copy of the board; it is safe to keep and read.
type Snapshot struct {
	Version    uint64         `json:"version"`
	Submitting bool           `json:"submitting"`
	Scan       ScanCard       `json:"scan"`
	Results    ResultsCard    `json:"results"`
	Artifacts  ArtifactsPanel `json:"artifacts"`
	File       *OpenFile      `json:"file,omitempty"`
	Recent     RecentPanel    `json:"recent"`
	Notices    []Notice       `json:"notices"`
}

const maxNotices = 20

// Board is the in-memory display every front end reads from.
type Board struct {
	mu          sync.RWMutex
	placeholder RenderedLine
	state       Snapshot
	subs        map[int]chan struct{}
	nextSub     int
	now         func() time.Time
}

func NewBoard(r *LogRenderer) *Board {
	return &Board{
		placeholder: r.Placeholder(),
		subs:        make(map[int]chan struct{}),
		now:         time.Now,
	}
}

// Snapshot returns a deep enough copy that callers can't race the board.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s := b.state
	s.Scan.Lines = append([]RenderedLine(nil), s.Scan.Lines...)
	s.Results.Cards = append([]SummaryCard(nil), s.Results.Cards...)
	s.Artifacts.Files = append([]models.FileArtifact(nil), s.Artifacts.Files...)
	s.Recent.Scans = append([]models.ScanSummary(nil), s.Recent.Scans...)
	s.Notices = append([]Notice(nil), s.Notices...)
	if s.File != nil {
		f := *s.File
		s.File = &f
	}
	return s
}

// Subscribe returns a channel that receives a signal after every change.
// Signals coalesce; read Snapshot to get the state. Call cancel when done.
func (b *Board) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// update runs fn under the write lock, then wakes subscribers.
func (b *Board) update(fn func(s *Snapshot)) {
	b.mu.Lock()
	fn(&b.state)
	b.state.Version++
	for _, ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

func (b *Board) ShowScan(v ScanView) {
	b.update(func(s *Snapshot) {
		s.Scan = ScanCard{
			Visible:     true,
			ScanID:      v.ScanID,
			Domain:      v.Domain,
			ScanType:    v.ScanType,
			Status:      StatusDisplay{Percent: 10, Color: ColorDefault}.Merge(v.Status),
			Lines:       []RenderedLine{b.placeholder},
			ScrollToEnd: true,
			Terminal:    v.Terminal,
		}
		s.Results = ResultsCard{}
		s.Artifacts = ArtifactsPanel{}
		s.File = nil
	})
}

func (b *Board) UpdateScan(v ScanView) {
	b.update(func(s *Snapshot) {
		if s.Scan.ScanID != v.ScanID {
			return
		}
		s.Scan.Status = s.Scan.Status.Merge(v.Status)
		s.Scan.Terminal = v.Terminal
		if v.Lines != nil {
			s.Scan.Lines = v.Lines
			s.Scan.ScrollToEnd = true
		}
	})
}

func (b *Board) AppendLine(scanID string, line RenderedLine) {
	b.update(func(s *Snapshot) {
		if s.Scan.ScanID != scanID {
			return
		}
		s.Scan.Lines = append(append([]RenderedLine(nil), s.Scan.Lines...), line)
		s.Scan.ScrollToEnd = true
	})
}

func (b *Board) SetSubmitting(busy bool) {
	b.update(func(s *Snapshot) {
		s.Submitting = busy
	})
}

func (b *Board) ShowResults(scanID string, cards []SummaryCard, message string) {
	b.update(func(s *Snapshot) {
		s.Results = ResultsCard{Visible: true, ScanID: scanID, Cards: cards, Message: message}
	})
}

func (b *Board) ShowArtifacts(scanID string, panel ArtifactsPanel) {
	b.update(func(s *Snapshot) {
		if s.Scan.ScanID != scanID {
			return
		}
		s.Artifacts = panel
	})
}

func (b *Board) ShowFile(f OpenFile) {
	b.update(func(s *Snapshot) {
		s.File = &f
	})
}

// CloseFile dismisses the open file viewer.
func (b *Board) CloseFile() {
	b.update(func(s *Snapshot) {
		s.File = nil
	})
}

func (b *Board) ShowRecent(p RecentPanel) {
	b.update(func(s *Snapshot) {
		s.Recent = p
	})
}

func (b *Board) Notify(n Notice) {
	if n.At.IsZero() {
		n.At = b.now()
	}
	b.update(func(s *Snapshot) {
		s.Notices = append(s.Notices, n)
		if len(s.Notices) > maxNotices {
			s.Notices = append([]Notice(nil), s.Notices[len(s.Notices)-maxNotices:]...)
		}
	})
}

// DismissNotices removes the notices of one region, or all when region is empty.
func (b *Board) DismissNotices(region Region) {
	b.update(func(s *Snapshot) {
		if region == "" {
			s.Notices = nil
			return
		}
		kept := s.Notices[:0:0]
		for _, n := range s.Notices {
			if n.Region != region {
				kept = append(kept, n)
			}
		}
		s.Notices = kept
	})
}
