package menu

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"graphseed/internal/logger"
	"graphseed/internal/ui"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMenuItemsAlignsAndSkipsDisabled(t *testing.T) {
	options := []MenuOption{
		{Label: "1. Bootstrap", Description: "start", Color: "green", Enabled: true},
		{Label: "2. Hidden", Enabled: false},
		{Label: "10. History", Color: "yellow", Enabled: true},
		{Label: "Exit", Color: "red", Enabled: true},
	}

	items, indexes := formatMenuItems(options)
	require.Len(t, items, 3)
	assert.Equal(t, []int{0, 2, 3}, indexes)
	assert.Equal(t, "🟢  1. Bootstrap  start", items[0])
	assert.Equal(t, "🟡 10. History", items[1])
	assert.Equal(t, "🔴     Exit", items[2])

	items, indexes = formatMenuItems(nil)
	assert.Nil(t, items)
	assert.Nil(t, indexes)
}

type scripted struct {
	choices []string
	seen    [][]string
}

func (s *scripted) selectItem(items []string) (int, error) {
	s.seen = append(s.seen, items)
	if len(s.choices) == 0 {
		return -1, promptui.ErrInterrupt
	}
	want := s.choices[0]
	s.choices = s.choices[1:]
	for i, item := range items {
		if strings.Contains(item, want) {
			return i, nil
		}
	}
	return -1, errors.New("no such item: " + want)
}

func newTestMenu(actions Actions, s *scripted, confirm bool) (*Menu, *logger.MockLogger) {
	log := logger.NewMockLogger()
	var out bytes.Buffer
	m := NewMenu(ui.NewConsole(log, &out), actions, "test")
	m.selectItem = s.selectItem
	m.confirm = func(string) bool { return confirm }
	m.pause = func(string) {}
	m.clear = func() {}
	return m, log
}

func TestShowMainMenuDispatchesActions(t *testing.T) {
	var calls []string
	actions := Actions{
		Status: func(context.Context) error {
			calls = append(calls, "status")
			return nil
		},
		Load: func(_ context.Context, force bool) error {
			if force {
				calls = append(calls, "load-force")
			} else {
				calls = append(calls, "load")
			}
			return errors.New("upload failed")
		},
	}
	s := &scripted{choices: []string{"Check status", "Load datasets", "Exit"}}
	m, log := newTestMenu(actions, s, true)

	require.NoError(t, m.ShowMainMenu(context.Background()))
	assert.Equal(t, []string{"status", "load-force"}, calls)
	assert.True(t, log.HasEntry(logger.LevelError, "upload failed"))

	for _, item := range s.seen[0] {
		assert.NotContains(t, item, "Bootstrap", "options without an action are hidden")
	}
}

func TestShowMainMenuInterrupt(t *testing.T) {
	m, log := newTestMenu(Actions{}, &scripted{}, false)
	require.NoError(t, m.ShowMainMenu(context.Background()))
	assert.True(t, log.HasEntry(logger.LevelInfo, "cancelled"))
}
