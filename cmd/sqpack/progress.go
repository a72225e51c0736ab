package main

import (
	"os"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/meigma/sqpack"
)

const descLength = 24

// progress renders Creator progress events as one bar per stage.
type progress struct {
	container *mpb.Progress

	mu   sync.Mutex
	bars map[sqpack.ProgressStage]*mpb.Bar

	// descMu is never held while calling into mpb; the render goroutine takes it.
	descMu sync.Mutex
	desc   map[sqpack.ProgressStage]string
}

// newProgress returns nil unless enabled and stderr is a terminal.
func newProgress(enabled bool) *progress {
	if !enabled || !term.IsTerminal(int(os.Stderr.Fd())) { //nolint:gosec // fd fits in int
		return nil
	}
	return &progress{
		container: mpb.New(
			mpb.WithOutput(os.Stderr),
			mpb.WithWidth(64),
			mpb.WithRefreshRate(100*time.Millisecond),
		),
		bars: make(map[sqpack.ProgressStage]*mpb.Bar),
		desc: make(map[sqpack.ProgressStage]string),
	}
}

// Func returns the callback to hand to sqpack.WithProgress. A nil progress
// yields a nil callback.
func (p *progress) Func() sqpack.ProgressFunc {
	if p == nil {
		return nil
	}
	return p.update
}

func (p *progress) update(ev sqpack.ProgressEvent) {
	switch ev.Stage {
	case sqpack.StageCompressing, sqpack.StageWritingData:
		p.descMu.Lock()
		p.desc[ev.Stage] = ev.Path
		p.descMu.Unlock()
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Stage {
	case sqpack.StageCompressing:
		bar := p.bar(ev.Stage, int64(ev.FilesTotal), decor.CountersNoUnit("%d/%d", decor.WC{C: decor.DindentRight}))
		bar.SetCurrent(int64(ev.FilesDone))
	case sqpack.StageWritingData:
		bar := p.bar(ev.Stage, int64(ev.BytesTotal), decor.CountersKibiByte("% .1f / % .1f", decor.WC{C: decor.DindentRight})) //nolint:gosec // archive sizes fit in int64
		bar.SetCurrent(int64(ev.BytesDone)) //nolint:gosec // bounded by BytesTotal
	}
}

// bar returns the stage's bar, creating it on first use. Callers hold p.mu.
func (p *progress) bar(stage sqpack.ProgressStage, total int64, counter decor.Decorator) *mpb.Bar {
	if bar, ok := p.bars[stage]; ok {
		return bar
	}
	name := stage.String()
	bar := p.container.New(total,
		mpb.BarStyle().Lbound("[").Filler("█").Tip("█").Padding("░").Rbound("]"),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.Any(func(decor.Statistics) string {
				p.descMu.Lock()
				d := p.desc[stage]
				p.descMu.Unlock()
				if len(d) > descLength {
					return ".." + d[len(d)-descLength+2:]
				}
				return d
			}, decor.WC{W: descLength, C: decor.DindentRight}),
			counter,
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
	p.bars[stage] = bar
	return bar
}

// Finish completes every bar and waits for the final render.
func (p *progress) Finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	for _, bar := range p.bars {
		bar.SetTotal(-1, true)
	}
	p.mu.Unlock()
	p.container.Wait()
}
