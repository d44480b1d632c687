// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpstatus exposes a read-mostly HTTP view of a running
// Supervisor: the current state of every process, and a restart
// action, routed with gorilla/mux.
package httpstatus

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dcondrey/process-pilot"
	"github.com/gorilla/mux"
)

const mimeJSON = "application/json; charset=UTF-8"

// ProcessInfo is the JSON view of one ChildHandle.
type ProcessInfo struct {
	Name         string             `json:"name"`
	Pid          int                `json:"pid"`
	RunID        string             `json:"run_id"`
	State        pilot.LifecycleState `json:"state"`
	RestartCount int                `json:"restart_count"`
	Stats        pilot.ProcessStats `json:"stats"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler wraps a Supervisor, adding http.Handler functionality.
type Handler struct {
	sv *pilot.Supervisor
	r  *mux.Router
}

// NewHandler builds a status Handler over sv, routed at /processes.
func NewHandler(sv *pilot.Supervisor) *Handler {
	h := &Handler{sv: sv, r: mux.NewRouter()}
	h.r.HandleFunc("/processes", h.listProcesses).Methods("GET")
	h.r.HandleFunc("/processes/{name}", h.getProcess).Methods("GET")
	h.r.HandleFunc("/processes/{name}/restart", h.restartProcess).Methods("POST")
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimeJSON)
	w.Write(b)
}

func (h *Handler) writeError(w http.ResponseWriter, code int, msg string) {
	b, err := json.Marshal(apiError{Code: code, Message: msg})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", mimeJSON)
	w.WriteHeader(code)
	w.Write(b)
}

func toInfo(v pilot.ChildView) ProcessInfo {
	return ProcessInfo{
		Name:         v.Name(),
		Pid:          v.Pid(),
		RunID:        v.RunID(),
		State:        v.State(),
		RestartCount: v.RestartCount(),
		Stats:        v.LastStats(),
	}
}

func (h *Handler) listProcesses(w http.ResponseWriter, r *http.Request) {
	views := h.sv.Snapshot()
	infos := make([]ProcessInfo, 0, len(views))
	for _, v := range views {
		infos = append(infos, toInfo(v))
	}
	h.writeJSON(w, infos)
}

func (h *Handler) getProcess(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, v := range h.sv.Snapshot() {
		if v.Name() == name {
			h.writeJSON(w, toInfo(v))
			return
		}
	}
	h.writeError(w, http.StatusNotFound, "process not found")
}

func (h *Handler) restartProcess(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.sv.RestartProcesses([]string{name}); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, struct {
		Restarted string    `json:"restarted"`
		At        time.Time `json:"at"`
	}{Restarted: name, At: time.Now()})
}
