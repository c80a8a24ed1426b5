package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/slotwall/internal/application"
	"github.com/bnema/slotwall/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	Title string
	// Now enables relative "last used" ages.
	Now time.Time
	// HideEmpty drops unbound slots from the listing.
	HideEmpty bool
	// Columns lays slots out as a grid, row by row. Zero or one is a list.
	Columns int
}

const defaultTitle = "Slot Wall"

func renderView(snapshot application.WallSnapshot, opts RenderOptions, s styles) string {
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}

	bound := snapshot.Bound()
	capacity := len(snapshot.Slots)
	lines := []string{
		s.title.Render(title),
		s.header.Render(headerLine(snapshot, bound, capacity)),
		occupancyLine(bound, capacity, s),
	}

	if capacity == 0 {
		lines = append(lines, s.empty.Render("No slots available."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	slotLines := make([]string, 0, capacity)
	for _, slot := range snapshot.Slots {
		if slot.Item == "" && opts.HideEmpty {
			continue
		}
		slotLines = append(slotLines, renderSlot(slot, opts, s))
	}
	if len(slotLines) == 0 {
		slotLines = append(slotLines, s.empty.Render("All slots are empty."))
	}

	lines = append(lines, s.section.Render(layoutGrid(slotLines, opts.Columns)))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func layoutGrid(cells []string, columns int) string {
	if columns <= 1 || len(cells) <= 1 {
		return lipgloss.JoinVertical(lipgloss.Left, cells...)
	}

	width := 0
	for _, cell := range cells {
		width = max(width, lipgloss.Width(cell))
	}
	pad := lipgloss.NewStyle().Width(width + 2)

	rows := make([]string, 0, (len(cells)+columns-1)/columns)
	for start := 0; start < len(cells); start += columns {
		end := min(start+columns, len(cells))
		row := make([]string, 0, end-start)
		for _, cell := range cells[start:end] {
			row = append(row, pad.Render(cell))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func headerLine(snapshot application.WallSnapshot, bound, capacity int) string {
	wall := "base"
	if snapshot.Expanded {
		wall = "expanded"
	}
	if snapshot.Suppressed {
		wall += " (suppressed)"
	}

	return fmt.Sprintf("slots: %d/%d  wall: %s  visible: %s  pending releases: %d",
		bound, capacity, wall, yesNo(snapshot.Visible), snapshot.PendingReleases)
}

func occupancyLine(bound, capacity int, s styles) string {
	percent := 0.0
	if capacity > 0 {
		percent = float64(bound) / float64(capacity) * 100
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		renderProgressBar(percent, 24, s),
		" ",
		lipgloss.NewStyle().Foreground(interpolateColor(percent, 0, 100)).Render(fmt.Sprintf("%3.0f%% bound", percent)),
	)
}

func renderSlot(slot application.SlotView, opts RenderOptions, s styles) string {
	index := s.slotIndex.Render(fmt.Sprintf("#%02d", int(slot.Index)))
	if slot.Item == "" {
		return lipgloss.JoinHorizontal(lipgloss.Top, index, " ", s.empty.Render("empty"))
	}

	parts := []string{
		index,
		" ",
		s.item.Render(string(slot.Item)),
		" ",
		lipgloss.NewStyle().Foreground(priorityColor(slot.Priority)).Render(slot.Priority.String()),
	}
	if slot.Claimant != "" {
		parts = append(parts, " ", s.detail.Render("by "+slot.Claimant))
	}
	if age := formatAge(slot.LastUsed, opts.Now); age != "" {
		parts = append(parts, " ", s.header.Render(age))
	}
	if slot.Terminal {
		parts = append(parts, " ", s.warning.Render("[solved]"))
	}
	if !slot.Active {
		parts = append(parts, " ", s.warning.Render("[inactive]"))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func renderProgressBar(filledPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	fraction := clampPercent(filledPercent) / 100.0
	filled := int(math.Round(float64(width) * fraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	empty := width - filled
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatAge(lastUsed, now time.Time) string {
	if lastUsed.IsZero() || now.IsZero() {
		return ""
	}

	age := now.Sub(lastUsed)
	if age < time.Second {
		return "just now"
	}
	return fmt.Sprintf("%s ago", age.Truncate(time.Second))
}

func priorityColor(priority domain.Priority) lipgloss.Color {
	return interpolateColor(float64(priority), float64(domain.PriorityUnviewed), float64(domain.PriorityManualRequest))
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp, faded at min and bright white at max.
	baseColor := 240.0
	targetColor := 255.0
	colorCode := int(baseColor + (targetColor-baseColor)*normalized)

	return lipgloss.Color(fmt.Sprintf("%d", colorCode))
}
