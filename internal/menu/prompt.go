package menu

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/manifoldco/promptui"
	runewidth "github.com/mattn/go-runewidth"
)

var numberPattern = regexp.MustCompile(`^(\d+)\.\s*(.*)$`)

func (m *Menu) promptUserSelection(options []MenuOption) (int, error) {
	items, indexes := formatMenuItems(options)

	index, err := m.selectItem(items)
	if err != nil {
		return -1, err
	}
	if index >= 0 && index < len(indexes) {
		return indexes[index], nil
	}
	return -1, errors.New("invalid selection")
}

func promptSelect(items []string) (int, error) {
	prompt := promptui.Select{
		Label: "Please select an operation",
		Items: items,
		Size:  10,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}:",
			Active:   "▶ {{ . | cyan }}",
			Inactive: "  {{ . }}",
			Selected: "✅ {{ . | green }}",
			Help:     "{{ \"Navigate:\" | faint }} {{ .NextKey }} {{ .PrevKey }} {{ \"|\" | faint }} {{ \"Exit:\" | faint }} Ctrl + C",
		},
	}

	index, _, err := prompt.Run()
	return index, err
}

func promptConfirm(label string) bool {
	prompt := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := prompt.Run()
	return err == nil
}

func waitForUserInput(message string) {
	prompt := promptui.Prompt{Label: message}
	_, _ = prompt.Run()
}

func formatMenuItems(options []MenuOption) ([]string, []int) {
	entries := buildMenuEntries(options)
	if len(entries) == 0 {
		return nil, nil
	}

	maxPrefixWidth := 0
	maxNumberWidth := 0
	maxTextWidth := 0
	for _, entry := range entries {
		if width := runewidth.StringWidth(entry.prefix); width > maxPrefixWidth {
			maxPrefixWidth = width
		}
		if len(entry.numberPart) > maxNumberWidth {
			maxNumberWidth = len(entry.numberPart)
		}
		if width := runewidth.StringWidth(entry.textPart); width > maxTextWidth {
			maxTextWidth = width
		}
	}

	items := make([]string, 0, len(entries))
	indexes := make([]int, 0, len(entries))
	for _, entry := range entries {
		prefix := entry.prefix + strings.Repeat(" ", maxPrefixWidth-runewidth.StringWidth(entry.prefix))

		numberColumn := ""
		if entry.numberPart != "" {
			numberColumn = fmt.Sprintf("%*s. ", maxNumberWidth, entry.numberPart)
		} else if maxNumberWidth > 0 {
			numberColumn = strings.Repeat(" ", maxNumberWidth+2)
		}

		item := fmt.Sprintf("%s %s%s", prefix, numberColumn, entry.textPart)
		if entry.description != "" {
			pad := maxTextWidth - runewidth.StringWidth(entry.textPart)
			item += strings.Repeat(" ", pad) + "  " + entry.description
		}
		items = append(items, item)
		indexes = append(indexes, entry.originalIndex)
	}
	return items, indexes
}

type menuEntry struct {
	prefix        string
	numberPart    string
	textPart      string
	description   string
	originalIndex int
}

func buildMenuEntries(options []MenuOption) []menuEntry {
	entries := make([]menuEntry, 0, len(options))
	for idx, option := range options {
		if !option.Enabled {
			continue
		}

		numberPart := ""
		textPart := option.Label
		if matches := numberPattern.FindStringSubmatch(option.Label); len(matches) == 3 {
			numberPart = matches[1]
			textPart = matches[2]
		}

		entries = append(entries, menuEntry{
			prefix:        statusPrefix(option.Color),
			numberPart:    numberPart,
			textPart:      textPart,
			description:   option.Description,
			originalIndex: idx,
		})
	}
	return entries
}

func statusPrefix(color string) string {
	switch color {
	case "red":
		return "🔴"
	case "green":
		return "🟢"
	case "yellow":
		return "🟡"
	case "cyan":
		return "🔵"
	default:
		return "⚪"
	}
}
