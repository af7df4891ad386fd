// Package menu implements the interactive graphseed menu.
package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"

	apperrors "graphseed/internal/errors"
	"graphseed/internal/ui"
)

var errExit = errors.New("exit requested")

// Selector shows items and returns the chosen index.
type Selector func(items []string) (int, error)

// Confirmer asks a yes/no question.
type Confirmer func(label string) bool

// Menu coordinates the interactive workflow.
type Menu struct {
	console *ui.Console
	printer *ui.Printer
	actions Actions
	version string

	selectItem Selector
	confirm    Confirmer
	pause      func(message string)
	clear      func()
}

// NewMenu creates a menu bound to console output.
func NewMenu(console *ui.Console, actions Actions, version string) *Menu {
	return &Menu{
		console:    console,
		printer:    ui.NewPrinter(console.Output()),
		actions:    actions,
		version:    version,
		selectItem: promptSelect,
		confirm:    promptConfirm,
		pause:      waitForUserInput,
		clear: func() {
			fmt.Fprint(console.Output(), "\033[H\033[2J")
		},
	}
}

// ShowMainMenu displays the menu until the user exits or ctx ends.
func (m *Menu) ShowMainMenu(ctx context.Context) error {
	log := m.console.Logger()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		m.clear()
		m.printer.PrintBanner(m.version)

		options := m.buildMenuOptions()
		selected, err := m.promptUserSelection(options)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				log.Info("User cancelled operation")
				return nil
			}
			return apperrors.New(apperrors.ErrCategorySystem, apperrors.CodeSystemGeneric, "failed to process user input", err).
				WithModule("menu").
				WithOperation("ShowMainMenu")
		}

		err = options[selected].Handler(ctx)
		if errors.Is(err, errExit) {
			return nil
		}
		if err != nil {
			log.Error("Operation failed: %v", err)
		}
		m.pause("\nPress Enter to continue...")
	}
}

func (m *Menu) buildMenuOptions() []MenuOption {
	return []MenuOption{
		{
			Label:       "1. Bootstrap",
			Description: "Start GraphDB, wait until ready and load all datasets",
			Handler:     m.actions.Bootstrap,
			Color:       "green",
			Enabled:     m.actions.Bootstrap != nil,
		},
		{
			Label:       "2. Load datasets",
			Description: "Upload configured datasets into a running server",
			Handler:     m.handleLoad,
			Color:       "cyan",
			Enabled:     m.actions.Load != nil,
		},
		{
			Label:       "3. Check status",
			Description: "Probe the server and list repository sizes",
			Handler:     m.actions.Status,
			Color:       "yellow",
			Enabled:     m.actions.Status != nil,
		},
		{
			Label:       "4. History",
			Description: "Show recent loads from the ledger",
			Handler:     m.actions.History,
			Color:       "yellow",
			Enabled:     m.actions.History != nil,
		},
		{
			Label:       "0. Exit",
			Description: "Leave the menu",
			Handler:     func(context.Context) error { return errExit },
			Color:       "red",
			Enabled:     true,
		},
	}
}

func (m *Menu) handleLoad(ctx context.Context) error {
	force := m.confirm("Reload files that are already loaded")
	return m.actions.Load(ctx, force)
}
