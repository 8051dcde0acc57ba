package report

import (
	"io"

	"github.com/vbauerster/mpb/v6"
	"github.com/vbauerster/mpb/v6/decor"
)

// Tracker wraps a download stream. Finish must be called exactly once.
type Tracker interface {
	io.Reader
	Finish(ok bool)
}

type plainTracker struct {
	io.Reader
}

func (plainTracker) Finish(bool) {}

type barTracker struct {
	io.ReadCloser
	progress *mpb.Progress
	bar      *mpb.Bar
}

func (t *barTracker) Finish(ok bool) {
	if ok {
		t.bar.SetTotal(-1, true)
	} else {
		t.bar.Abort(true)
	}
	t.progress.Wait()
}

// Track returns r unchanged unless progress bars are enabled. Size may be -1.
func (c *Console) Track(basename string, size int64, r io.Reader) Tracker {
	if !c.progress {
		return plainTracker{Reader: r}
	}

	total := size
	if total < 0 {
		total = 0
	}

	p := mpb.New(mpb.WithOutput(c.out), mpb.WithWidth(64))
	bar := p.AddBar(total,
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name(basename, decor.WC{W: len(basename) + 1, C: decor.DidentRight}),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f"),
			decor.AverageSpeed(decor.UnitKiB, "  % .1f"),
		),
	)
	return &barTracker{ReadCloser: bar.ProxyReader(r), progress: p, bar: bar}
}
