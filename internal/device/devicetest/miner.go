// Package devicetest provides an in-process AxeOS device for tests.
package devicetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shizukutanaka/axetune/internal/device"
)

// Patch is a recorded PATCH /api/system body
type Patch struct {
	Frequency         int  `json:"frequency"`
	CoreVoltage       int  `json:"coreVoltage"`
	AutoFanSpeed      bool `json:"autoFanSpeed"`
	FlipScreen        bool `json:"flipScreen"`
	InvertFanPolarity bool `json:"invertFanPolarity"`
}

// Model computes hashrate and temperature for a setting
type Model func(frequency, coreVoltage int) (hashrate, temp float64)

// Miner is a fake AxeOS device served over HTTP
type Miner struct {
	mu       sync.Mutex
	info     device.SystemInfo
	model    Model
	patches  []Patch
	infoHits int
	failInfo int
	failSet  int

	server *httptest.Server
}

// NewMiner starts a fake device reporting info
func NewMiner(info device.SystemInfo) *Miner {
	m := &Miner{info: info}

	r := mux.NewRouter()
	r.HandleFunc(device.SystemPath, m.handlePatch).Methods(http.MethodPatch)
	r.HandleFunc(device.InfoPath, m.handleInfo).Methods(http.MethodGet)

	m.server = httptest.NewServer(r)
	return m
}

// URL returns the base URL of the fake device
func (m *Miner) URL() string {
	return m.server.URL
}

// Close shuts the server down
func (m *Miner) Close() {
	m.server.Close()
}

// SetModel makes hashrate and temperature follow the applied setting
func (m *Miner) SetModel(model Model) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
}

// FailInfo makes the next n info requests return 503
func (m *Miner) FailInfo(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failInfo = n
}

// FailPatch makes the next n setting changes return 500
func (m *Miner) FailPatch(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSet = n
}

// Patches returns the accepted setting changes
func (m *Miner) Patches() []Patch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Patch, len(m.patches))
	copy(out, m.patches)
	return out
}

// InfoHits returns how many info requests were served, failed ones included
func (m *Miner) InfoHits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.infoHits
}

func (m *Miner) handlePatch(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failSet > 0 {
		m.failSet--
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var p Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m.patches = append(m.patches, p)
	m.info.Frequency = float64(p.Frequency)
	m.info.CoreVoltage = float64(p.CoreVoltage)
	w.WriteHeader(http.StatusOK)
}

func (m *Miner) handleInfo(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.infoHits++
	if m.failInfo > 0 {
		m.failInfo--
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	info := m.info
	if m.model != nil {
		info.HashRate, info.Temp = m.model(int(info.Frequency), int(info.CoreVoltage))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
