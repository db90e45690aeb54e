package main

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"watchrag/internal/service"
)

var _ service.Progress = (*batchProgress)(nil)

type batchProgress struct {
	desc string
	bar  *progressbar.ProgressBar
}

// newBatchProgress returns nil when stderr is not a terminal.
func newBatchProgress(desc string) service.Progress {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return &batchProgress{desc: desc}
}

func (p *batchProgress) Start(total int) {
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(p.desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *batchProgress) Increment() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *batchProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
}
