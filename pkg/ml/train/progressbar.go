// Copyright 2023-2026 The KerasGo Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
var ProgressbarStyle = progressbar.ThemeASCII

// ProgressBarPriority is the priority of the progress bar hooks: it runs after the other hooks by default.
const ProgressBarPriority Priority = 1000

// progressBar holds a progressbar being displayed.
type progressBar struct {
	writer           io.Writer
	bar              *progressbar.ProgressBar
	lastStepReported int
}

// AttachProgressBar displays a progress bar on the standard output while the loop runs.
func AttachProgressBar(loop *Loop) {
	AttachProgressBarToWriter(loop, os.Stdout)
}

// AttachProgressBarToWriter displays a progress bar on w while the loop runs.
func AttachProgressBarToWriter(loop *Loop, w io.Writer) {
	pBar := &progressBar{writer: w}
	loop.OnStart("progressbar", ProgressBarPriority, pBar.onStart)
	loop.OnStep("progressbar", ProgressBarPriority, pBar.onStep)
	loop.OnEnd("progressbar", ProgressBarPriority, pBar.onEnd)
}

func (pBar *progressBar) onStart(loop *Loop) error {
	pBar.lastStepReported = loop.LoopStep
	pBar.bar = progressbar.NewOptions(loop.EndStep-loop.StartStep,
		progressbar.OptionSetDescription("Training"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar.writer),
	)
	return nil
}

func (pBar *progressBar) onStep(loop *Loop) error {
	if pBar.bar.IsFinished() {
		return nil
	}
	amount := loop.LoopStep + 1 - pBar.lastStepReported // +1 because the current LoopStep is finished.
	if amount <= 0 {
		return nil
	}
	pBar.bar.Describe(fmt.Sprintf("Training [step %s of %s]",
		humanize.Comma(int64(loop.LoopStep+1)), humanize.Comma(int64(loop.EndStep))))
	pBar.lastStepReported = loop.LoopStep + 1
	return pBar.bar.Add(amount)
}

func (pBar *progressBar) onEnd(loop *Loop) error {
	if err := pBar.bar.Finish(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(pBar.writer, "\nMedian step duration: %s\n", loop.MedianTrainStepDuration())
	return err
}
