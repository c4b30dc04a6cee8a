package main

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/bidlane/auction-server/configs"
	"github.com/bidlane/auction-server/internal/database"
	"github.com/bidlane/auction-server/internal/engine"
	"github.com/bidlane/auction-server/pkg/utils"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Ops console: a read-only view of live auctions and their current L1
// standing, next to the process log buffer.

var (
	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	baseStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))
	db database.Service
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Every(30*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type model struct {
	table     table.Model
	viewport  viewport.Model
	logBuffer *bytes.Buffer
	logs      []string
	showTable bool
	quitting  bool
}

func (m model) Init() tea.Cmd {
	return tick()
}

func auctionRows() []table.Row {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	auctions, err := db.ListActiveAuctions(ctx)
	if err != nil {
		log.Error("Error getting auctions: ", err)
		return nil
	}

	rows := make([]table.Row, 0, len(auctions))
	for _, auction := range auctions {
		leader := "-"
		leaderTotal := "-"

		bids, err := db.ListBids(ctx, auction.ID)
		if err != nil {
			log.Error("Error getting bids: ", err)
		} else if ranks := engine.ComputeRanks(bids); len(ranks) > 0 {
			l1 := ranks[0]
			leader = l1.SupplierID
			leaderTotal = l1.Total.String()
			suppliers, err := db.ListSuppliersByIDs(ctx, []string{l1.SupplierID})
			if err == nil {
				if s, ok := suppliers[l1.SupplierID]; ok {
					leader = s.Name
				}
			}
		}

		timeLeft := time.Until(auction.EndsAt)
		timeLeftStr := timeLeft.Round(time.Second).String()
		if timeLeft < 0 {
			timeLeftStr = "Expired"
		}

		rows = append(rows, table.Row{
			auction.ID,
			auction.Title,
			leader,
			leaderTotal,
			timeLeftStr,
		})
	}
	return rows
}

func newTable() model {
	columns := []table.Column{
		{Title: "AUCTION ID", Width: 20},
		{Title: "TITLE", Width: 20},
		{Title: "L1 SUPPLIER", Width: 20},
		{Title: "L1 TOTAL", Width: 12},
		{Title: "TIME LEFT", Width: 14},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(auctionRows()),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(100, 15)
	vp.Style = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		PaddingRight(2)
	return model{table: t, showTable: true, viewport: vp}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)
	switch msg := msg.(type) {
	case tickMsg:
		if m.showTable {
			m.table.SetRows(auctionRows())
		} else {
			// refresh logs to get new logs
			m.logs = strings.Split(m.logBuffer.String(), "\n")
		}
		cmds = append(cmds, tick())

	case tea.KeyMsg:
		switch msg.String() {
		case "up":
			if !m.showTable {
				m.viewport.LineUp(1) // Scroll up one line in logs
			}
		case "down":
			if !m.showTable {
				m.viewport.LineDown(1) // Scroll down one line in logs
			}
		case "tab":
			m.showTable = !m.showTable
			if !m.showTable {
				// Load logs from buffer when switching to logs view
				m.logs = strings.Split(m.logBuffer.String(), "\n")
			}
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	}

	if m.showTable {
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.quitting {
		return "Bye!\n"
	}
	if m.showTable {
		return baseStyle.Render(m.table.View()) + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
	}

	styledLogs := make([]string, len(m.logs))
	copy(styledLogs, m.logs)
	styledLogs = utils.ColorizeLogs(styledLogs)

	// only show last 15 lines of logs
	if len(styledLogs) > 15 {
		styledLogs = styledLogs[len(styledLogs)-15:]
	}

	m.viewport.SetContent(strings.Join(styledLogs, "\n"))
	return m.viewport.View() + "\n" + helpStyle.Render("• tab: switch modes • q: exit\n")
}

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		log.Fatal("Error loading config: ", err)
	}

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "debug"
	}
	logLevel, err := log.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		log.Error("Invalid log level: ", err)
	}
	log.SetLevel(logLevel)

	// Redirect logs to buffer so the viewport can render them
	logBuffer := new(bytes.Buffer)
	log.SetOutput(logBuffer)

	db, err = database.New(cfg)
	if err != nil {
		log.Fatal("Error connecting to database: ", err)
	}
	defer db.Close()

	m := newTable()
	m.logBuffer = logBuffer
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running ops console: %v", err)
	}
}
