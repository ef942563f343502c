package recorder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Waiter blocks the caller between start and stop.
type Waiter interface {
	Wait(ctx context.Context) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context) error

func (f WaiterFunc) Wait(ctx context.Context) error { return f(ctx) }

const progressWidth = 40

// Timed waits for a fixed duration. When Progress is set a progress bar is
// redrawn on it every tick.
type Timed struct {
	Duration time.Duration
	Progress io.Writer
	Tick     time.Duration
}

func (t Timed) Wait(ctx context.Context) error {
	tick := t.Tick
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	timer := time.NewTimer(t.Duration)
	defer timer.Stop()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	start := time.Now()
	t.draw(0)
	for {
		select {
		case <-ctx.Done():
			t.finish()
			return ctx.Err()
		case <-timer.C:
			t.draw(t.Duration)
			t.finish()
			return nil
		case <-ticker.C:
			t.draw(time.Since(start))
		}
	}
}

func (t Timed) draw(elapsed time.Duration) {
	if t.Progress == nil {
		return
	}
	ratio := 1.0
	if t.Duration > 0 {
		ratio = float64(elapsed) / float64(t.Duration)
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * progressWidth)
	fmt.Fprintf(t.Progress, "\rRecording... [%s%s] %3.0f%%",
		strings.Repeat("#", filled), strings.Repeat("-", progressWidth-filled), ratio*100)
}

func (t Timed) finish() {
	if t.Progress != nil {
		fmt.Fprintln(t.Progress)
	}
}

// UntilEnter waits for a line on In.
type UntilEnter struct {
	In  io.Reader
	Out io.Writer
}

func (u UntilEnter) Wait(ctx context.Context) error {
	if u.Out != nil {
		fmt.Fprintln(u.Out, "Press `Enter` to stop recording.")
	}
	line := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(u.In).ReadString('\n')
		if err == io.EOF {
			err = nil
		}
		line <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-line:
		return err
	}
}
