// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/iqrfsdk/cdcscope/pkg/cdc"
	"github.com/iqrfsdk/cdcscope/pkg/dpa"
)

// Error log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// Last known state of the device, collected from the frames seen
type deviceState struct {
	device      *cdc.DeviceInfo
	module      *cdc.ModuleInfo
	spi         *cdc.SPIStatus
	spiAt       time.Time
	asyncAt     time.Time
	asyncData   []byte
	dpa         *dpa.Packet
	temperature *dpa.Temperature
}

// TUI model
type model struct {
	connInfo      string
	statsInterval int
	showAll       bool
	stats         *cdc.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  int
	width         int
	height        int
	quitting      bool
	state         deviceState
	closed        bool
}

// Messages
type tickMsg time.Time
type serialDataMsg frameEvent
type syncMsg struct {
	invalidBytes int
}
type connectionLostMsg struct {
	err error
}

// formatUptime formats a duration in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	unit := func(n uint64, name string) string {
		if n == 1 {
			return "1 " + name
		}
		return fmt.Sprintf("%d %ss", n, name)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, unit(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, unit(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, unit(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, unit(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialModel(connInfo string, statsInterval int, showAll bool) model {
	return model{
		connInfo:      connInfo,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         cdc.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		// Update statistics rates
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case connectionLostMsg:
		m.closed = true
		if isConnectionClosed(msg.err) {
			m.addLogEntry("Connection closed", true)
		} else {
			m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
		}

	case serialDataMsg:
		m.handleFrame(frameEvent(msg))
	}

	return m, nil
}

func (m *model) handleFrame(ev frameEvent) {
	if ev.res.Status == cdc.ParseBadFormat {
		m.stats.Update(ev.res, len(ev.raw), nil, nil)
		m.addLogEntry(fmt.Sprintf("BAD FORMAT: %s at byte %d, dropped %d bytes",
			ev.res.Type, ev.res.LastPosition, len(ev.raw)), true)
		return
	}

	m.stats.Update(ev.res, 0, ev.decodeErr, ev.validationErrors)

	if ev.decodeErr != nil {
		m.addLogEntry(fmt.Sprintf("DECODE ERROR: %v", ev.decodeErr), true)
		return
	}

	m.state.track(ev.msg)

	switch {
	case len(ev.validationErrors) > 0:
		for _, err := range ev.validationErrors {
			m.addLogEntry(fmt.Sprintf("%s: %s", ev.res.Type, err.Message), true)
		}
	case ev.res.Type == cdc.MsgAsync:
		m.addLogEntry(fmt.Sprintf("%s: %d bytes", ev.res.Type, len(m.state.asyncData)), false)
	case m.showAll:
		m.addLogEntry(fmt.Sprintf("%s (valid)", ev.res.Type), false)
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// track keeps the latest identification, SPI status and async data
func (st *deviceState) track(msg cdc.Message) {
	switch v := msg.(type) {
	case cdc.DeviceInfo:
		st.device = &v

	case cdc.ModuleInfo:
		st.module = &v

	case cdc.SPIStatus:
		st.spi = &v
		st.spiAt = time.Now()

	case cdc.AsyncData:
		st.asyncAt = time.Now()
		st.asyncData = v.Data
		st.dpa = nil
		st.temperature = nil

		p, err := dpa.Parse(v.Data)
		if err != nil {
			return
		}
		st.dpa = p
		if t, err := dpa.ParseTemperature(p); err == nil {
			st.temperature = &t
		}
	}
}

func (st *deviceState) empty() bool {
	return st.device == nil && st.module == nil && st.spi == nil && st.asyncAt.IsZero()
}

// render formats the known device state, one line per item
func (st deviceState) render() string {
	var b strings.Builder

	if st.device != nil {
		b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("USB:"), valueStyle.Render(st.device.DeviceType),
			labelStyle.Render("FW:"), valueStyle.Render(st.device.FirmwareVersion),
			labelStyle.Render("SN:"), valueStyle.Render(st.device.SerialNumber),
		))
	}

	if st.module != nil {
		b.WriteString(fmt.Sprintf("%s %s   %s %s (build %04X)\n",
			labelStyle.Render("TR Module:"), valueStyle.Render(fmt.Sprintf("%08X", st.module.ModuleID())),
			labelStyle.Render("OS:"), valueStyle.Render(st.module.OSVersionString()), st.module.OSBuildNumber(),
		))
	}

	if st.spi != nil {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			labelStyle.Render("SPI:"), valueStyle.Render(cdc.FormatSPIStatus(*st.spi)),
			dimStyle.Render(st.spiAt.Format("15:04:05")),
		))
	}

	if !st.asyncAt.IsZero() {
		b.WriteString(fmt.Sprintf("%s %s %s\n",
			labelStyle.Render("Last DR:"), valueStyle.Render(cdc.FormatHex(st.asyncData)),
			dimStyle.Render(st.asyncAt.Format("15:04:05")),
		))
		if st.dpa != nil {
			b.WriteString(fmt.Sprintf("%s %s\n",
				labelStyle.Render("DPA:"), st.dpa.Format(),
			))
		}
		if st.temperature != nil {
			b.WriteString(fmt.Sprintf("%s %s\n",
				labelStyle.Render(fmt.Sprintf("Node %d:", st.dpa.NAdr)),
				valueStyle.Render(fmt.Sprintf("%.2f°C", st.temperature.Value)),
			))
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("CDCSCOPE - ERROR DETECTION"))
	s.WriteString("\n")
	mode := "Errors only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(dimStyle.Render(fmt.Sprintf("%s | Mode: %s | Session: %s | 'r' reset, 'q' quit",
		m.connInfo, mode, formatUptime(uint64(time.Since(m.stats.StartTime).Milliseconds())))))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case m.closed:
		s.WriteString(errorStyle.Render("✗ Disconnected"))
		s.WriteString("\n\n")
	case !m.synchronized:
		s.WriteString(warningStyle.Render("⏳ Waiting for synchronization..."))
		s.WriteString("\n\n")
	default:
		s.WriteString(valueStyle.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(dimStyle.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
		s.WriteString("\n\n")
	}

	// Statistics
	m.stats.CalculateRates()
	totalErrors := m.stats.Errors()
	var validPercent, errorPercent float64
	if m.stats.TotalFrames > 0 {
		validPercent = float64(m.stats.ValidFrames) * 100.0 / float64(m.stats.TotalFrames)
		errorPercent = float64(totalErrors) * 100.0 / float64(m.stats.TotalFrames)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
		labelStyle.Render("Total:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d (%.1f%%)", m.stats.ValidFrames, validPercent)),
		labelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d (%.1f%%)", totalErrors, errorPercent)),
		labelStyle.Render("DR:"), valueStyle.Render(fmt.Sprintf("%d", m.stats.AsyncMessages)),
	))

	if m.stats.BadFormat > 0 || m.stats.DecodeErrors > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s %s   %s %s\n",
			labelStyle.Render("Bad Format:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.BadFormat)),
			dimStyle.Render(fmt.Sprintf("(%d bytes dropped)", m.stats.DroppedBytes)),
			labelStyle.Render("Decode Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.DecodeErrors)),
		))
	}

	if m.stats.DeviceErrors > 0 || m.stats.SPIErrors > 0 || m.stats.DataRejected > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Device ERR:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.DeviceErrors)),
			labelStyle.Render("SPI Errors:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.SPIErrors)),
			labelStyle.Render("DS Rejected:"), errorStyle.Render(fmt.Sprintf("%d", m.stats.DataRejected)),
		))
	}

	if m.stats.EmptyData > 0 || m.stats.InvalidInfo > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s\n",
			labelStyle.Render("Empty DR:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.EmptyData)),
			labelStyle.Render("Invalid Info:"), warningStyle.Render(fmt.Sprintf("%d", m.stats.InvalidInfo)),
		))
	}

	errorRate := valueStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
	if m.stats.ErrorRate > 0 {
		errorRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", m.stats.ErrorRate))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Frame Rate:"), valueStyle.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
		labelStyle.Render("Error Rate:"), errorRate,
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Device section (only shown once something was identified)
	if st := m.state; !st.empty() {
		s.WriteString(labelStyle.Render("Device:"))
		s.WriteString("\n")

		s.WriteString(boxStyle.Render(st.render()))
		s.WriteString("\n\n")
	}

	// Error log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Reserve space for header, stats and device
	rows := m.height - 18
	if rows < 5 {
		rows = 5
	}
	s.WriteString(boxStyle.Width(m.width - 4).Render(renderLog(m.errorLog, rows, "01/02/06 15:04:05.000")))

	return s.String()
}
