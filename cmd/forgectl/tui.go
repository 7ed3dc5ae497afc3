// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ============================================================================
// Styles
// ============================================================================

var (
	tuiTitleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	tuiUserStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("36"))
	tuiForgeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	tuiHintStyle   = lipgloss.NewStyle().Faint(true)
	tuiWarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tuiErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	tuiDoneStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	tuiFooterStyle = lipgloss.NewStyle().Faint(true)
)

// ============================================================================
// Messages and model
// ============================================================================

// turnMsg carries one completed server round trip into Update.
type turnMsg struct {
	turn *chatResponse
	err  error
}

// chatLine is one rendered row of conversation history.
type chatLine struct {
	speaker string // "you", "forge", "warn", "error", "done"
	text    string
}

// chatModel is the Bubble Tea model for the chat TUI. One model instance
// maps to one wizard session; the session id arrives with the first reply.
type chatModel struct {
	client    *apiClient
	sessionID string

	lines   []chatLine
	hints   []string
	input   textinput.Model
	spin    spinner.Model
	waiting bool
	done    bool
	width   int
}

func newChatModel(client *apiClient, sessionID string) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Describe what you want to build... (Enter to send, Esc to quit)"
	ti.Prompt = "> "
	ti.CharLimit = 2048
	ti.Width = 76
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))

	return chatModel{
		client:    client,
		sessionID: sessionID,
		input:     ti,
		spin:      sp,
		waiting:   true,
	}
}

// sendTurn posts one message to the server off the Update loop.
func (m chatModel) sendTurn(message string) tea.Cmd {
	client := m.client
	sessionID := m.sessionID
	return func() tea.Msg {
		turn, err := client.Chat(context.Background(), sessionID, message)
		return turnMsg{turn: turn, err: err}
	}
}

// Init opens the conversation; the first reply is the wizard's greeting.
func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, m.sendTurn(openingMessage))
}

// Update handles key presses, server replies, and spinner ticks.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if m.done {
				return m, tea.Quit
			}
			if m.waiting {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			if text == "exit" || text == "quit" || text == "q" {
				return m, tea.Quit
			}

			m.lines = append(m.lines, chatLine{speaker: "you", text: text})
			m.hints = nil
			m.input.Reset()
			m.waiting = true
			return m, tea.Batch(m.sendTurn(text), m.spin.Tick)
		}

	case turnMsg:
		m.waiting = false
		if msg.err != nil {
			m.lines = append(m.lines, chatLine{speaker: "error", text: msg.err.Error()})
			return m, nil
		}

		turn := msg.turn
		m.sessionID = turn.SessionID
		m.lines = append(m.lines, chatLine{speaker: "forge", text: turn.Message})
		m.hints = turn.Hints
		if turn.Warning != "" {
			m.lines = append(m.lines, chatLine{speaker: "warn", text: turn.Warning})
		}
		if turn.BuildID != "" {
			m.lines = append(m.lines, chatLine{speaker: "done",
				text: "Build specification saved: " + turn.BuildID})
		}
		if !turn.RequiresInput {
			m.done = true
		}
		return m, nil

	case spinner.TickMsg:
		if m.waiting {
			m.spin, cmd = m.spin.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 4; w > 20 {
			m.input.Width = w
		}
		return m, nil
	}

	if !m.waiting && !m.done {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the conversation, the current hints, and the input line.
func (m chatModel) View() string {
	var b strings.Builder

	b.WriteString(tuiTitleStyle.Render("Aleutian Forge"))
	if m.sessionID != "" {
		b.WriteString(tuiFooterStyle.Render("  session " + m.sessionID))
	}
	b.WriteString("\n\n")

	for _, line := range m.lines {
		switch line.speaker {
		case "you":
			b.WriteString(tuiUserStyle.Render("You: "))
			b.WriteString(line.text)
		case "forge":
			b.WriteString(tuiForgeStyle.Render("Forge: "))
			b.WriteString(m.wrap(line.text))
		case "warn":
			b.WriteString(tuiWarnStyle.Render("Warning: " + line.text))
		case "error":
			b.WriteString(tuiErrorStyle.Render("Error: " + line.text))
		case "done":
			b.WriteString(tuiDoneStyle.Render(line.text))
		}
		b.WriteString("\n\n")
	}

	if line := hintLine(m.hints); line != "" && !m.waiting && !m.done {
		b.WriteString(tuiHintStyle.Render(line))
		b.WriteString("\n\n")
	}

	switch {
	case m.done:
		b.WriteString(tuiFooterStyle.Render("Conversation complete. Press Enter to exit."))
	case m.waiting:
		b.WriteString(fmt.Sprintf("%s Thinking...", m.spin.View()))
	default:
		b.WriteString(m.input.View())
	}
	b.WriteString("\n\n")
	b.WriteString(tuiFooterStyle.Render("Enter: send | exit/quit or Esc: leave"))
	b.WriteString("\n")

	return b.String()
}

// wrap applies terminal-width word wrapping to long wizard replies once the
// window size is known.
func (m chatModel) wrap(text string) string {
	if m.width <= 10 {
		return text
	}
	return lipgloss.NewStyle().Width(m.width - 8).Render(text)
}

// runChatTUI runs the Bubble Tea program until the user leaves.
func runChatTUI(client *apiClient, sessionID string) error {
	p := tea.NewProgram(newChatModel(client, sessionID))
	_, err := p.Run()
	return err
}
