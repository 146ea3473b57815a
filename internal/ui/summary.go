package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// CallSummary is printed after leaving a call.
type CallSummary struct {
	RoomID    string
	Duration  time.Duration
	PeersSeen int
	Messages  int
	Received  int64
}

func newPrettyTable(title string) prettytable.Writer {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.SetTitle(title)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	return t
}

func CallSummaryView(s CallSummary) string {
	t := newPrettyTable("📊 Call Summary")
	t.AppendRows([]prettytable.Row{
		{"Room", s.RoomID},
		{"Duration", formatDuration(s.Duration)},
		{"Participants", s.PeersSeen},
		{"Messages", s.Messages},
		{"Received", formatBytes(s.Received)},
	})
	return t.Render()
}

func RenderCallSummary(s CallSummary) {
	fmt.Println(CallSummaryView(s))
}

// RoomStatusView renders the answer to a room lookup.
func RoomStatusView(roomID string, exists bool, participants int) string {
	t := newPrettyTable(IconRoom + " Room " + roomID)
	status := "not found"
	if exists {
		status = "open"
	}
	t.AppendRow(prettytable.Row{"Status", status})
	if exists {
		t.AppendRow(prettytable.Row{"Participants", strconv.Itoa(participants)})
	}
	return t.Render()
}

// RoomInfoView is the box shown after creating a room.
func RoomInfoView(roomID, roomLink string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconWeb, MutedStyle.Render(roomLink),
	)
	return SuccessBoxStyle.Render(content)
}

// JoinedView is printed once the server accepted the join.
func JoinedView(roomID, roomLink string, others int) string {
	who := "You are the first one here"
	if others == 1 {
		who = "1 other participant"
	} else if others > 1 {
		who = fmt.Sprintf("%d other participants", others)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("%s Joined room %s", IconSuccess, BoldStyle.Foreground(Primary).Render(roomID)),
		MutedStyle.Render(fmt.Sprintf("%s %s  •  %s", IconWeb, roomLink, who)),
	)
}
