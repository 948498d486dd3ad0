package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"math"
	"time"

	"plcdash-server/internal/modules/dashboard/snapshot"
	"plcdash-server/internal/modules/dashboard/types"
)

const Title = "Siemens S7-1200, TIA Portal Live Dashboard"

var dashboardTmpl *template.Template

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
// Used by LoadTemplates and by tests to simulate failure scenarios.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	dashboardTmpl, err = template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// QuantityView is one statistics table: formatted min, max, mean and current value.
type QuantityView struct {
	Label   string
	Current string
	Min     string
	Max     string
	Mean    string
}

type HistoryRow struct {
	Time        string
	Humidity    string
	Temperature string
}

type DashboardData struct {
	Title string
	// RefreshSeconds drives the page's meta refresh.
	RefreshSeconds int
	Humidity       QuantityView
	Temperature    QuantityView
	Recent         []HistoryRow
	Series         snapshot.Series
	LastUpdated    string
}

// NewDashboardData formats snap for the dashboard page. refresh is rounded up
// to whole seconds, minimum one.
func NewDashboardData(snap snapshot.Snapshot, refresh time.Duration) *DashboardData {
	recent := make([]HistoryRow, 0, len(snap.Recent))
	for _, r := range snap.Recent {
		recent = append(recent, HistoryRow{
			Time:        r.Time.Format(snapshot.ClockLayout),
			Humidity:    formatHumidity(float64(r.Humidity)),
			Temperature: formatTemperature(float64(r.Temperature)),
		})
	}

	lastUpdated := snap.GeneratedAt
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	return &DashboardData{
		Title:          Title,
		RefreshSeconds: refreshSeconds(refresh),
		Humidity: QuantityView{
			Label:   "Humidity",
			Current: formatHumidity(float64(snap.Current.Humidity)),
			Min:     formatHumidity(float64(snap.Stats.Humidity.Min)),
			Max:     formatHumidity(float64(snap.Stats.Humidity.Max)),
			Mean:    formatHumidity(snap.Stats.Humidity.Mean),
		},
		Temperature: QuantityView{
			Label:   "Temperature",
			Current: formatTemperature(float64(snap.Current.Temperature)),
			Min:     formatTemperature(float64(snap.Stats.Temperature.Min)),
			Max:     formatTemperature(float64(snap.Stats.Temperature.Max)),
			Mean:    formatTemperature(snap.Stats.Temperature.Mean),
		},
		Recent:      recent,
		Series:      snap.ChartSeries(),
		LastUpdated: lastUpdated.Format(snapshot.ClockLayout),
	}
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}

// RenderStatsPartial executes only the statistics tables into w.
func RenderStatsPartial(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "partials/stats.html", data)
}

// raw is in tenths.
func formatHumidity(raw float64) string {
	return fmt.Sprintf("%.1f%%", raw/types.Scale)
}

func formatTemperature(raw float64) string {
	return fmt.Sprintf("%.1f°C", raw/types.Scale)
}

func refreshSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
