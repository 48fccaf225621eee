package ui

import (
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"bugcheck/internal/driver"
)

// Run executes work while rendering its progress events to out. work must
// send its events through the given sink; Run closes the channel once work
// returns, which ends the UI.
func Run[T any](out io.Writer, title string, files []string, work func(driver.ProgressSink) (T, error)) (T, error) {
	events := make(chan driver.Event, 256)
	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := work(driver.ChannelSink{Ch: events})
		close(events)
		done <- outcome{value: v, err: err}
	}()

	program := tea.NewProgram(NewProgressModel(title, files, events), tea.WithOutput(out))
	_, uiErr := program.Run()
	if uiErr != nil {
		// keep draining so the worker never blocks on a full channel
		go func() {
			for range events {
			}
		}()
	}
	res := <-done
	if uiErr != nil {
		return res.value, uiErr
	}
	return res.value, res.err
}
