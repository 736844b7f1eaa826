// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
	"github.com/iqrfsdk/cdcscope/pkg/dpa"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	statusPollSeconds = 5 // Send >S every N seconds while polling
)

// Focus states
const (
	focusCommandList = iota
	focusDataInput
	focusButton
)

// commandDescriptions are the one line summaries shown in the command list
var commandDescriptions = map[cdc.Command]string{
	cdc.CmdTest:     "Test connection",
	cdc.CmdResetUSB: "Reset the USB device",
	cdc.CmdResetTR:  "Reset the TR module",
	cdc.CmdUSBInfo:  "USB device identification",
	cdc.CmdTRInfo:   "TR module identification",
	cdc.CmdIndicate: "Indicate connectivity (LED)",
	cdc.CmdStatus:   "SPI status of the TR module",
	cdc.CmdDataSend: "Send data to the TR module",
	cdc.CmdSwitch:   "Switch to custom mode",
}

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// commandItem is a USB-CDC command in the command list
type commandItem struct {
	cmd cdc.Command
}

// Implement list.Item interface
func (c commandItem) Title() string       { return fmt.Sprintf(">%s %s", c.cmd.Header(), c.cmd) }
func (c commandItem) Description() string { return commandDescriptions[c.cmd] }
func (c commandItem) FilterValue() string { return c.cmd.String() }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	// Connection manager (for sending commands and reconnection)
	connMgr  *connectionManager
	connInfo string

	// Commands
	commandList list.Model
	dataInput   textinput.Model
	pending     bool

	// Monitoring (reused from tui.go patterns)
	stats         *cdc.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	state         deviceState
	lastResult    string

	// UI state
	focusedField   int
	width          int
	height         int
	quitting       bool
	connectionLost bool

	// Status polling
	polling      bool
	lastPollTime time.Time
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlDataMsg struct {
	res              cdc.ParseResult
	raw              []byte
	msg              cdc.Message
	decodeErr        error
	validationErrors []cdc.ValidationError
}

type controlBatchMsg struct {
	messages []controlDataMsg
}

type commandResultMsg struct {
	cmd    cdc.Command
	msg    cdc.Message
	err    error
	rtt    time.Duration
	silent bool // periodic polls only log failures
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialControlModel(connMgr *connectionManager, connInfo string) controlModel {
	// Initialize text input for DS data
	ti := textinput.New()
	ti.Placeholder = cdc.FormatHex(dpa.ThermometerRequest(0))
	ti.CharLimit = 3 * cdc.MaxDataSize
	ti.Width = 40

	// Initialize command list
	items := make([]list.Item, len(cdc.Commands))
	for i, c := range cdc.Commands {
		items[i] = commandItem{cmd: c}
	}
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	commandList := list.New(items, delegate, 34, 10)
	commandList.Title = "Commands"
	commandList.SetShowStatusBar(false)
	commandList.SetShowHelp(false)
	commandList.SetFilteringEnabled(false)

	return controlModel{
		connMgr:       connMgr,
		connInfo:      connInfo,
		commandList:   commandList,
		dataInput:     ti,
		stats:         cdc.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		focusedField:  focusCommandList,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return tea.Batch(controlTickCmd(), m.identify())
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.MouseMsg:
		return m.handleMouseMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates()
		cmds = append(cmds, controlTickCmd())
		if m.polling && !m.connectionLost && time.Since(m.lastPollTime) >= time.Duration(statusPollSeconds)*time.Second {
			m.lastPollTime = time.Now()
			cmds = append(cmds, m.runCommand(cdc.CmdStatus, nil, true))
		}
		return m, tea.Batch(cmds...)

	case controlBatchMsg:
		for _, data := range msg.messages {
			m.processControlData(data)
		}

	case commandResultMsg:
		m.handleCommandResult(msg)

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.state = deviceState{}
		m.addLogEntry("Reconnected - identifying device", false)
		return m, m.identify()
	}

	// Update child components
	var cmd tea.Cmd
	if m.focusedField == focusDataInput {
		m.dataInput, cmd = m.dataInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	if m.focusedField == focusCommandList {
		m.commandList, cmd = m.commandList.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "q":
		if m.focusedField != focusDataInput {
			m.quitting = true
			return m, tea.Quit
		}

	case "p":
		if m.focusedField != focusDataInput {
			m.polling = !m.polling
			if m.polling {
				m.addLogEntry(fmt.Sprintf("SPI status polling every %ds", statusPollSeconds), false)
			} else {
				m.addLogEntry("SPI status polling stopped", false)
			}
			return m, nil
		}

	case "tab":
		return m.cycleFocus(1), nil

	case "shift+tab":
		return m.cycleFocus(-1), nil

	case "enter":
		return m.handleEnter()

	case "up", "k", "down", "j":
		if m.focusedField == focusCommandList {
			m.commandList, _ = m.commandList.Update(msg)
			return m, nil
		}
	}

	// Pass through to focused component
	if m.focusedField == focusDataInput {
		var cmd tea.Cmd
		m.dataInput, cmd = m.dataInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *controlModel) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	// For now, pass mouse events to the list
	m.commandList, _ = m.commandList.Update(msg)

	return m, nil
}

func (m *controlModel) cycleFocus(delta int) *controlModel {
	maxFocus := focusButton

	// Cycle through focus states
	m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)

	// Data input only applies to >DS
	if m.focusedField == focusDataInput && m.selectedCommand() != cdc.CmdDataSend {
		m.focusedField = (m.focusedField + delta + maxFocus + 1) % (maxFocus + 1)
	}

	// Update focus state
	if m.focusedField == focusDataInput {
		m.dataInput.Focus()
	} else {
		m.dataInput.Blur()
	}

	return m
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	// Don't allow commands while connection is lost
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return m, nil
	}
	if m.pending {
		m.addLogEntry("Waiting for the previous command", true)
		return m, nil
	}

	c := m.selectedCommand()
	var data []byte
	if c == cdc.CmdDataSend {
		input := m.dataInput.Value()
		if input == "" {
			input = m.dataInput.Placeholder
		}
		var err error
		if data, err = parseHexData(input); err != nil {
			m.addLogEntry(fmt.Sprintf("Invalid data: %v", err), true)
			return m, nil
		}
		if len(data) > cdc.MaxDataSize {
			m.addLogEntry(fmt.Sprintf("Data must be at most %d bytes", cdc.MaxDataSize), true)
			return m, nil
		}
	}

	m.pending = true
	return m, m.runCommand(c, data, false)
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Header
	helpText := "q=quit Tab=switch p=poll"
	s.WriteString(titleStyle.Render("CDCSCOPE CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(dimStyle.Render(fmt.Sprintf("| %s | %s", connStatus, helpText)))
	if m.polling {
		s.WriteString(" ")
		s.WriteString(valueStyle.Render("[polling]"))
	}
	s.WriteString("\n\n")

	// Layout: left panel (commands) | right panel (control)
	leftWidth := 34
	rightWidth := m.width - leftWidth - 6

	listStyle := boxStyle.Width(leftWidth)
	if m.focusedField == focusCommandList {
		listStyle = focusedBoxStyle.Width(leftWidth)
	}
	commandPanel := listStyle.Render(m.commandList.View())

	controlContent := m.renderControlPanel()
	controlPanel := boxStyle.Width(rightWidth).Render(controlContent)

	// Join panels horizontally
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, commandPanel, " ", controlPanel))
	s.WriteString("\n\n")

	// Statistics bar
	s.WriteString(m.renderStatisticsBar())
	s.WriteString("\n\n")

	// Event log
	s.WriteString(m.renderEventLog())

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderControlPanel() string {
	var s strings.Builder

	// Device state
	if m.state.empty() {
		s.WriteString(dimStyle.Render("Device not identified yet"))
	} else {
		s.WriteString(m.state.render())
	}
	s.WriteString("\n\n")

	c := m.selectedCommand()
	s.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Selected:"), commandDescriptions[c]))

	// Data field for >DS
	if c == cdc.CmdDataSend {
		s.WriteString(labelStyle.Render("Data: "))
		if m.focusedField == focusDataInput {
			s.WriteString(m.dataInput.View())
		} else {
			// Show as plain text when not focused
			val := m.dataInput.Value()
			if val == "" {
				val = m.dataInput.Placeholder
			}
			s.WriteString(fmt.Sprintf("[%s]", val))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Send button
	btnText := "[ Send ]"
	if m.pending {
		btnText = "[ Waiting... ]"
	}
	if m.focusedField == focusButton {
		s.WriteString(focusedButtonStyle.Render(btnText))
	} else {
		s.WriteString(buttonStyle.Render(btnText))
	}

	if m.lastResult != "" {
		s.WriteString("\n\n")
		s.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Result:"), m.lastResult))
	}

	return s.String()
}

func (m controlModel) renderStatisticsBar() string {
	m.stats.CalculateRates()
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(m.stats.Errors()) * 100.0 / float64(m.stats.TotalFrames)
	}

	errText := valueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%.1f%%", validPercent)),
		labelStyle.Render("Errors:"), errText,
		labelStyle.Render("DR:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.AsyncMessages)),
		labelStyle.Render("Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog() string {
	return boxStyle.Width(m.width - 4).Render(
		labelStyle.Render("EVENTS") + "\n" + renderLog(m.errorLog, 8, "15:04:05.000"))
}

//////////////////////////////////////////////////////////////
// Data Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processControlData(msg controlDataMsg) {
	if msg.res.Status == cdc.ParseBadFormat {
		m.stats.Update(msg.res, len(msg.raw), nil, nil)
		m.addLogEntry(fmt.Sprintf("BAD FORMAT: dropped %d bytes: %s", len(msg.raw), cdc.FormatRaw(msg.raw)), true)
		return
	}

	m.stats.Update(msg.res, 0, msg.decodeErr, msg.validationErrors)

	if msg.decodeErr != nil {
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", msg.decodeErr), true)
		return
	}

	m.state.track(msg.msg)

	for _, err := range msg.validationErrors {
		m.addLogEntry(fmt.Sprintf("%s: %s", msg.res.Type, err.Message), true)
	}

	if data, ok := msg.msg.(cdc.AsyncData); ok {
		entry := fmt.Sprintf("DR %s", cdc.FormatHex(data.Data))
		if m.state.dpa != nil {
			entry = fmt.Sprintf("DR %s", m.state.dpa.Format())
		}
		m.addLogEntry(entry, false)
	}
}

func (m *controlModel) handleCommandResult(msg commandResultMsg) {
	if !msg.silent {
		m.pending = false
	}

	if msg.err != nil {
		// Lost connections are reported by the connection manager
		if errors.Is(msg.err, cdc.ErrReceptionStopped) {
			return
		}
		m.lastResult = fmt.Sprintf("%s failed: %v", msg.cmd, msg.err)
		m.addLogEntry(m.lastResult, true)
		return
	}

	if msg.silent {
		return
	}

	m.lastResult = fmt.Sprintf("%s (%v)", cdc.FormatMessage(msg.msg), msg.rtt.Round(time.Millisecond))
	m.addLogEntry(fmt.Sprintf("%s: %s", msg.cmd, m.lastResult), false)
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

// runCommand sends c on the current client from a tea.Cmd goroutine
func (m controlModel) runCommand(c cdc.Command, data []byte, silent bool) tea.Cmd {
	client := m.connMgr.getClient()
	return func() tea.Msg {
		start := time.Now()
		msg, err := client.Do(context.Background(), c, data)
		return commandResultMsg{cmd: c, msg: msg, err: err, rtt: time.Since(start), silent: silent}
	}
}

// identify reads the USB device and TR module identification
func (m controlModel) identify() tea.Cmd {
	return tea.Sequence(
		m.runCommand(cdc.CmdUSBInfo, nil, true),
		m.runCommand(cdc.CmdTRInfo, nil, true),
	)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

func (m *controlModel) selectedCommand() cdc.Command {
	if item, ok := m.commandList.SelectedItem().(commandItem); ok {
		return item.cmd
	}
	return cdc.CmdTest
}

func (m *controlModel) updateListSize() {
	// Adjust list size based on terminal size
	listHeight := m.height / 2
	if listHeight < 6 {
		listHeight = 6
	}
	m.commandList.SetSize(32, listHeight)
}
