package http

import (
	"context"
	"net/http"
	"time"

	applog "buckify/internal/log"
)

// overviewTimeout bounds a cold dashboard load.
const overviewTimeout = 7 * time.Second

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	hid, _ := householdID(r)
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), overviewTimeout)
	defer cancel()

	ov, err := s.summary.MonthOverview(ctx, hid, p.Year, p.Month)
	if err != nil {
		ServiceError(w, r, applog.ComponentDashboard, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(toOverviewDTO(ov)).Write(w)
}
