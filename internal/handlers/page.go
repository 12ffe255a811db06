package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"airquality-platform/internal/models"
	"airquality-platform/internal/services"
	"airquality-platform/pkg/logging"
)

const (
	pageTitle          = "Calidad del Aire - Bogota"
	emptySelectionText = "Sin datos"
)

type statRow struct {
	Label string
	Value string
}

type pageData struct {
	Title        string
	Summary      *models.StoreSummary
	Days         int
	Stations     []services.Option
	Monitors     []services.Option
	StationValue string
	MonitorValue string
	Selection    *services.Selection
	Stats        []statRow
}

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"thousands": thousands,
}).Parse(`<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: sans-serif; margin: 0; padding: 24px; background: #fafafa; color: #212529; }
        h1 { text-align: center; color: #007bff; }
        .cards { display: flex; gap: 16px; margin-bottom: 24px; }
        .card { flex: 1; background: #fff; border: 1px solid #dee2e6; border-radius: 6px; padding: 16px; text-align: center; }
        .card h4 { margin: 0 0 8px 0; font-size: 1.6em; }
        .card p { margin: 0; color: #6c757d; }
        .filters { display: flex; gap: 16px; margin-bottom: 24px; align-items: end; }
        .filters label { font-weight: bold; display: block; margin-bottom: 4px; }
        .chart { background: #fff; border: 1px solid #dee2e6; margin-bottom: 24px; }
        .chart img { width: 100%; }
        .row { display: flex; gap: 16px; }
        .row .chart { flex: 1; }
        table { border-collapse: collapse; width: 100%; background: #fff; }
        th { background: #007bff; color: #fff; text-align: left; padding: 10px; }
        td { padding: 10px; }
        tr:nth-child(odd) td { background: #f8f9fa; }
        .empty { text-align: center; color: #6c757d; font-size: 1.2em; }
    </style>
</head>
<body>
    <h1>{{.Title}}</h1>
    <hr>
    {{with .Summary}}
    <div class="cards">
        <div class="card"><h4>{{thousands .TotalMeasurements}}</h4><p>Mediciones totales</p></div>
        <div class="card"><h4>{{.TotalStations}}</h4><p>Estaciones</p></div>
        <div class="card"><h4>{{.TotalMonitors}}</h4><p>Monitores</p></div>
        <div class="card"><h4>{{$.Days}}</h4><p>Dias de datos</p></div>
    </div>
    {{end}}
    <form class="filters" method="get" action="/">
        <div>
            <label for="station">Estacion:</label>
            <select id="station" name="station" onchange="this.form.submit()">
                {{range .Stations}}<option value="{{.Value}}"{{if eq .Value $.StationValue}} selected{{end}}>{{.Label}}</option>
                {{end}}
            </select>
        </div>
        <div>
            <label for="monitor">Monitor:</label>
            <select id="monitor" name="monitor" onchange="this.form.submit()">
                {{range .Monitors}}<option value="{{.Value}}"{{if eq .Value $.MonitorValue}} selected{{end}}>{{.Label}}</option>
                {{end}}
            </select>
        </div>
        <noscript><button type="submit">Actualizar</button></noscript>
    </form>
    <div class="chart"><img alt="Serie temporal" src="/charts/timeseries.svg?station={{.StationValue}}&monitor={{.MonitorValue}}"></div>
    <div class="row">
        <div class="chart"><img alt="Histograma" src="/charts/histogram.svg?station={{.StationValue}}&monitor={{.MonitorValue}}"></div>
        <div class="chart"><img alt="Dia de la semana" src="/charts/boxplot.svg?station={{.StationValue}}&monitor={{.MonitorValue}}"></div>
    </div>
    <h3 style="text-align: center">Estadisticas Descriptivas</h3>
    {{if .Stats}}
    <table>
        <tr><th>Estadistica</th><th>Valor</th></tr>
        {{range .Stats}}<tr><td>{{.Label}}</td><td>{{.Value}}</td></tr>
        {{end}}
    </table>
    {{else}}
    <p class="empty">Sin datos</p>
    {{end}}
</body>
</html>`))

// Dashboard handles GET /, the HTML dashboard for one station and monitor.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stationID, monitorCode, err := h.resolveSelection(r)
	if err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	data := pageData{
		Title:        pageTitle,
		Stations:     h.dashboard.StationOptions(),
		Monitors:     h.dashboard.MonitorOptions(),
		StationValue: strconv.Itoa(stationID),
		MonitorValue: monitorCode,
		Selection:    h.dashboard.Select(stationID, monitorCode),
	}
	if summary, err := h.dashboard.Summary(); err == nil {
		data.Summary = summary
		data.Days = summary.DaysCovered()
	}
	if !data.Selection.Empty() {
		data.Stats = statRows(data.Selection.Stats)
	}

	var buf bytes.Buffer
	if err := dashboardTemplate.Execute(&buf, data); err != nil {
		h.logger.Error(ctx, "[DASHBOARD_RENDER_ERROR] Failed to render page", logging.Fields{
			"station_id":   stationID,
			"monitor_code": monitorCode,
		}, err)
		h.metrics.RecordAPIError("render_error", "/")
		h.sendError(w, "failed to render dashboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// statRows formats the descriptive statistics table. A missing standard
// deviation (single reading) shows as "-".
func statRows(s *services.DescriptiveStats) []statRow {
	if s == nil {
		return nil
	}
	std := "-"
	if s.Std != nil {
		std = fmt.Sprintf("%.2f", *s.Std)
	}
	return []statRow{
		{"Conteo", strconv.Itoa(s.Count)},
		{"Promedio", fmt.Sprintf("%.2f", s.Mean)},
		{"Desv. Estandar", std},
		{"Minimo", fmt.Sprintf("%.2f", s.Min)},
		{"25%", fmt.Sprintf("%.2f", s.Q25)},
		{"Mediana", fmt.Sprintf("%.2f", s.Median)},
		{"75%", fmt.Sprintf("%.2f", s.Q75)},
		{"Maximo", fmt.Sprintf("%.2f", s.Max)},
	}
}

// thousands renders n with comma group separators.
func thousands(n int) string {
	s := strconv.Itoa(n)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}
