package main

import (
	"encoding/json"
	"io"
	"io/ioutil"
	"log"
	"net/http"
	"strconv"
	"strings"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/mastercactapus/zcal/command"
	"github.com/mastercactapus/zcal/service"
	"github.com/mastercactapus/zcal/store"
	"github.com/mastercactapus/zcal/zswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Service is the part of service.Service the API uses.
type Service interface {
	Dispatch(command.Command) (string, error)
	Status() zswitch.Status
	Subscribe(func(service.Event))
}

// History lists recorded runs.
type History interface {
	Runs(limit int) ([]store.Run, error)
}

type api struct {
	http.Handler
	svc     Service
	history History
	resume  func() error
	sse     *sse.Server
	log     logrus.FieldLogger
}

func newAPI(svc Service, history History, resume func() error) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		svc:     svc,
		history: history,
		resume:  resume,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(ioutil.Discard, "", 0),
		}),
		log: logrus.WithField("component", "api"),
	}

	r.HandleFunc("/api/command", a.command).Methods("POST")
	r.HandleFunc("/api/zswitch/move", a.named(command.MoveToZSwitch)).Methods("POST")
	r.HandleFunc("/api/zswitch/probe", a.named(command.ProbeZSwitch,
		command.Samples, command.SamplesTolerance, command.SamplesMaxCount, command.ZCalc)).Methods("POST")
	r.HandleFunc("/api/calibrate", a.named(command.CalibrateAllZOffsets,
		command.Tools, command.Ref, command.ZCalc)).Methods("POST")
	r.HandleFunc("/api/resume", a.resumeHold).Methods("POST")
	r.HandleFunc("/api/status", a.status).Methods("GET")
	r.HandleFunc("/api/history", a.runs).Methods("GET")
	r.PathPrefix("/events/").Handler(a.sse)

	svc.Subscribe(a.publish)

	return a
}

func (a *api) Close() {
	a.sse.Shutdown()
}

func (a *api) publish(e service.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		a.log.WithError(err).Error("marshal event")
		return
	}
	a.sse.SendMessage("/events/status", sse.SimpleMessage(string(data)))
}

// httpStatus maps a command error to a response code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrBusy):
		return http.StatusConflict
	case zswitch.IsValidation(err),
		errors.Is(err, command.ErrInvalidParam),
		errors.Is(err, command.ErrUnknown):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type commandResponse struct {
	Command  string          `json:"command"`
	Response string          `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
	Status   *zswitch.Status `json:"status,omitempty"`
}

func (a *api) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.log.WithError(err).Error("encode response")
	}
}

func (a *api) exec(w http.ResponseWriter, cmd command.Command) {
	resp := commandResponse{Command: cmd.String()}
	out, err := a.svc.Dispatch(cmd)
	if err != nil {
		code := httpStatus(err)
		if code == http.StatusInternalServerError {
			a.log.WithError(err).WithField("command", resp.Command).Error("command failed")
		}
		resp.Error = err.Error()
		a.writeJSON(w, code, resp)
		return
	}
	resp.Response = out
	st := a.svc.Status()
	resp.Status = &st
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *api) command(w http.ResponseWriter, req *http.Request) {
	data, err := ioutil.ReadAll(io.LimitReader(req.Body, 4096))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := command.Parse(string(data))
	if err != nil {
		a.writeJSON(w, http.StatusBadRequest, commandResponse{Command: strings.TrimSpace(string(data)), Error: err.Error()})
		return
	}
	a.exec(w, cmd)
}

// named returns a handler running name with params taken from the form.
func (a *api) named(name string, params ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		p := make(map[string]string, len(params))
		for _, key := range params {
			v := req.FormValue(key)
			if v == "" {
				v = req.FormValue(strings.ToLower(key))
			}
			p[key] = v
		}
		a.exec(w, command.New(name, p))
	}
}

func (a *api) resumeHold(w http.ResponseWriter, req *http.Request) {
	err := a.resume()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) status(w http.ResponseWriter, req *http.Request) {
	a.writeJSON(w, http.StatusOK, a.svc.Status())
}

type runJSON struct {
	ID         int64                `json:"id"`
	Command    string               `json:"command"`
	StartedAt  string               `json:"started_at"`
	FinishedAt string               `json:"finished_at"`
	RefTool    *int                 `json:"ref_tool,omitempty"`
	Method     string               `json:"method,omitempty"`
	Error      string               `json:"error,omitempty"`
	Results    []zswitch.ToolResult `json:"results"`
}

func (a *api) runs(w http.ResponseWriter, req *http.Request) {
	if a.history == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}
	limit := 20
	if s := req.FormValue("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := a.history.Runs(limit)
	if err != nil {
		a.log.WithError(err).Error("list runs")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]runJSON, 0, len(runs))
	for _, r := range runs {
		out = append(out, runJSON{
			ID:         r.ID,
			Command:    r.Command,
			StartedAt:  r.StartedAt.Format(timeFormat),
			FinishedAt: r.FinishedAt.Format(timeFormat),
			RefTool:    r.RefTool,
			Method:     r.Method,
			Error:      r.Error,
			Results:    r.Results,
		})
	}
	a.writeJSON(w, http.StatusOK, out)
}
