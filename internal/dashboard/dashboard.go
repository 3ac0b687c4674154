package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/pulsewire/internal/metrics"
	"github.com/torosent/pulsewire/internal/report"
)

// Info holds run parameters shown in the header.
type Info struct {
	Target     string        // reported target_url
	Collector  string        // collector endpoint
	Interval   time.Duration // reporting interval
	Producer   string        // producer description, empty when none
	ConfigFile string        // path to config file if used
}

// Controller is the part of the scheduler the dashboard reads and toggles.
// *report.Scheduler satisfies it.
type Controller interface {
	Active() bool
	Toggle() bool
	Stats() report.DeliveryStats
	RunID() string
	StartedAt() time.Time
}

// Dashboard renders a live terminal UI for the aggregated statistics and
// delivery health.
type Dashboard struct {
	source       report.SnapshotSource
	gauges       func() (float64, int)
	ctrl         Controller
	info         Info
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	successGauge   *widgets.Gauge
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	codeList       *widgets.List
	errorList      *widgets.List
	deliveryPara   *widgets.Paragraph
	latencyHistory []float64
	startTime      time.Time
}

// New initialises the terminal and builds the widgets. gauges may be nil.
func New(source report.SnapshotSource, gauges func() (float64, int), ctrl Controller, info Info, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		source:         source,
		gauges:         gauges,
		ctrl:           ctrl,
		info:           info,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		startTime:      time.Now(),
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

const historySize = 100

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Window mean (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Average Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = formatLatency(metrics.Snapshot{})
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Requests Per Second"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.successGauge = widgets.NewGauge()
	d.successGauge.Title = "Success Rate"
	d.successGauge.Percent = 100
	d.successGauge.BarColor = ui.ColorGreen
	d.successGauge.BorderStyle.Fg = ui.ColorCyan
	d.successGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.codeList = widgets.NewList()
	d.codeList.Title = "Response Codes"
	d.codeList.Rows = formatCodeRows(nil)
	d.codeList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.codeList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = formatErrorRows(nil)
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Pulsewire"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.deliveryPara = widgets.NewParagraph()
	d.deliveryPara.Title = "Delivery"
	d.deliveryPara.Text = formatDelivery(false, report.DeliveryStats{}, "", time.Time{})
	d.deliveryPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(0.5, d.rpsGauge),
			ui.NewCol(0.5, d.successGauge),
		),
		ui.NewRow(0.28,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.42,
			ui.NewCol(0.3, d.codeList),
			ui.NewCol(0.3, d.errorList),
			ui.NewCol(0.4, d.deliveryPara),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update()
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() cancels the context.
			case "s":
				d.ctrl.Toggle()
				d.update()
				d.render()
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	active := d.ctrl.Active()
	var rps float64
	var conns int
	if active && d.gauges != nil {
		rps, conns = d.gauges()
	}
	snap := d.source.Snapshot(rps, conns)
	elapsed := time.Since(d.startTime)

	d.latencyHistory = appendHistory(d.latencyHistory, snap.AverageLatencyMs)
	d.latencySparkle.Sparklines[0].Data = d.latencyHistory
	d.latencySparkle.Title = fmt.Sprintf("Average Latency | Current: %.2fms | P99: %.2fms", snap.AverageLatencyMs, snap.P99LatencyMs)

	d.rpsGauge.Percent = gaugePercent(rps, 100)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS | %d active", rps, conns)

	d.successGauge.Percent = gaugePercent(snap.SuccessRatePct, 100)
	d.successGauge.Label = fmt.Sprintf("%.1f%%", snap.SuccessRatePct)
	if snap.SuccessRatePct < 90 {
		d.successGauge.BarColor = ui.ColorRed
	} else {
		d.successGauge.BarColor = ui.ColorGreen
	}

	d.summaryPara.Text = formatSummary(d.info, snap, elapsed)
	d.latencyPara.Text = formatLatency(snap)
	d.codeList.Rows = formatCodeRows(snap.ResponseCodes)
	d.errorList.Rows = formatErrorRows(snap.Errors)
	d.deliveryPara.Text = formatDelivery(active, d.ctrl.Stats(), d.ctrl.RunID(), d.ctrl.StartedAt())
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func appendHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > historySize {
		history = history[len(history)-historySize:]
	}
	return history
}

// gaugePercent scales v against a ceiling that grows with v.
func gaugePercent(v, ceiling float64) int {
	if v <= 0 {
		return 0
	}
	if v > ceiling {
		ceiling = v
	}
	pct := int(v / ceiling * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatSummary(info Info, snap metrics.Snapshot, elapsed time.Duration) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Collector: %s", info.Collector))
	if info.Interval > 0 {
		parts = append(parts, fmt.Sprintf("Interval: %s", info.Interval))
	}
	if info.Producer != "" {
		parts = append(parts, fmt.Sprintf("Producer: %s", info.Producer))
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}

	return fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Total: %d | Errors: %d | Sent: %d B | Received: %d B\n[s](fg:yellow) start/stop reporting  [q](fg:yellow) quit",
		info.Target,
		strings.Join(parts, " | "),
		elapsed.Round(time.Second),
		snap.TotalRequests,
		snap.ErrorCount,
		snap.BytesSent,
		snap.BytesReceived,
	)
}

func formatLatency(snap metrics.Snapshot) string {
	return fmt.Sprintf(
		"Mean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		snap.AverageLatencyMs,
		snap.P50LatencyMs,
		snap.P90LatencyMs,
		snap.P99LatencyMs,
	)
}

const maxListRows = 10

func formatCodeRows(rows []metrics.CodeBucket) []string {
	if len(rows) == 0 {
		return []string{"[Awaiting data](fg:green)"}
	}
	if len(rows) > maxListRows {
		rows = rows[:maxListRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		color := "cyan"
		if !strings.HasPrefix(row.Code, "2") {
			color = "red"
		}
		formatted = append(formatted, fmt.Sprintf("[%s](fg:%s) %d (%.1f%%)", row.Code, color, row.Count, row.Percentage))
	}
	return formatted
}

func formatErrorRows(rows []metrics.ErrorBucket) []string {
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > maxListRows {
		rows = rows[:maxListRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", row.Type, row.Count))
	}
	return formatted
}

func formatDelivery(active bool, stats report.DeliveryStats, runID string, startedAt time.Time) string {
	status := "[stopped](fg:yellow)"
	if active {
		status = "[running](fg:green)"
	}
	lines := []string{
		"Status:     " + status,
		fmt.Sprintf("Attempts:   %d", stats.Attempts),
		fmt.Sprintf("Delivered:  %d", stats.Delivered),
		fmt.Sprintf("Failed:     %d", stats.Failed),
	}
	if runID != "" {
		lines = append(lines, "Run:        "+runID)
	}
	if !startedAt.IsZero() {
		lines = append(lines, "Started:    "+startedAt.Format(time.TimeOnly))
	}
	if !stats.LastSuccess.IsZero() {
		lines = append(lines, "Last OK:    "+stats.LastSuccess.Format(time.TimeOnly))
	}
	if stats.ConsecutiveFailures > 0 {
		reason := stats.LastError
		if stats.LastStatusCode != 0 {
			reason = fmt.Sprintf("HTTP %d", stats.LastStatusCode)
		}
		lines = append(lines, fmt.Sprintf("[Failing x%d: %s](fg:red)", stats.ConsecutiveFailures, reason))
	}
	return strings.Join(lines, "\n")
}
