package web

import (
	"fmt"
	"html/template"
	"net/http"
	"regexp"

	"opscal/internal/layout"
	appLog "opscal/internal/log"
	"opscal/internal/model"
)

var hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{3,8}$`)

var gridTemplate = template.Must(template.New("grid").Funcs(template.FuncMap{
	"boxStyle": boxStyle,
	"hours":    hourRows,
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:0}
.cols{display:flex}
.axis{width:48px}
.col{flex:1;border-left:1px solid #ddd}
.body{position:relative;height:{{.DayHeight}}px}
.hour{height:{{.PixelsPerHour}}px;border-top:1px solid #eee;box-sizing:border-box;font-size:10px;color:#888}
.ev{position:absolute;box-sizing:border-box;border-radius:3px;color:#fff;font-size:11px;overflow:hidden;padding:2px}
.ev.preview{opacity:.7;outline:2px dashed #333}
.today .head{font-weight:bold}
.allday{min-height:18px;font-size:11px}
</style></head>
<body><div data-ready="true">
<h1>{{.Title}}</h1>
<div class="cols">
<div class="axis"><div class="head">&nbsp;</div><div class="allday"></div>{{range hours}}<div class="hour">{{printf "%02d:00" .}}</div>{{end}}</div>
{{range .Days}}<div class="col{{if .Today}} today{{end}}" data-day="{{.Key}}">
<div class="head">{{.Start.Format "Mon 02"}}</div>
<div class="allday">{{range .AllDay}}<div>{{.Title}}</div>{{end}}</div>
<div class="body">{{range .Timed}}<div class="ev{{if .Previewing}} preview{{end}}" data-event="{{.Event.ID}}" style="{{boxStyle .}}">{{.Event.Title}}</div>{{end}}</div>
</div>{{end}}
</div></div></body></html>`))

func hourRows() []int {
	h := make([]int, 24)
	for i := range h {
		h[i] = i
	}
	return h
}

type gridPage struct {
	Title         string
	PixelsPerHour float64
	DayHeight     float64
	Days          []dayView
}

// boxStyle renders the absolute position of a placed event. Colours that
// are not plain hex fall back to the default accent.
func boxStyle(p layout.Placed) template.CSS {
	color := p.Color
	if !hexColor.MatchString(color) {
		color = layout.DefaultAccentColor
	}
	cols := p.Columns
	if cols < 1 {
		cols = 1
	}
	width := 100.0 / float64(cols)
	return template.CSS(fmt.Sprintf("top:%.4f%%;height:%.4f%%;left:%.4f%%;width:%.4f%%;background:%s",
		p.TopPercent, p.HeightPercent, width*float64(p.Column), width, color))
}

// handleGrid renders the day/week time grid as HTML. Other kinds are
// served as JSON by /api/view only.
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	kind, anchor, err := s.requestView(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if kind != model.ViewDay && kind != model.ViewWeek {
		writeError(w, http.StatusBadRequest, "grid supports day and week views")
		return
	}

	rd, win, err := s.renderFor(r.Context(), kind, anchor, false)
	if err != nil {
		appLog.Error("grid: fetch failed", err)
		writeError(w, http.StatusBadGateway, "failed to fetch events")
		return
	}
	v := s.buildView(kind, anchor, win, rd.data, s.cfg.Grid.MonthCellLimit)

	page := gridPage{
		Title:         v.Title,
		PixelsPerHour: s.engine.Grid.PixelsPerHour,
		DayHeight:     s.engine.Grid.DayHeight(),
		Days:          v.Days,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := gridTemplate.Execute(w, page); err != nil {
		appLog.Error("grid: template failed", err)
	}
}
