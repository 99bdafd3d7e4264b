// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package openwebif

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Endpoint paths served by MockServer.
const (
	PathBouquets = "/api/bouquets"
	PathServices = "/api/getservices"
	PathEPG      = "/api/epgservice"
)

// Default references served by a fresh MockServer.
const (
	MockPremiumBouquet = `1:7:1:0:0:0:0:0:0:0:FROM BOUQUET "userbouquet.premium.tv" ORDER BY bouquet`
	MockHDBouquet      = `1:7:1:0:0:0:0:0:0:0:FROM BOUQUET "userbouquet.hd.tv" ORDER BY bouquet`
	MockARDRef         = "1:0:19:283D:3FB:1:C00000:0:0:0:"
	MockZDFRef         = "1:0:19:283E:3FB:1:C00000:0:0:0:"
)

// MockServer is a configurable OpenWebIF receiver for tests.
type MockServer struct {
	*httptest.Server

	mu        sync.Mutex
	bouquets  [][2]string
	services  map[string][]Service
	epgEvents map[string][]EPGEvent
	delay     map[string]time.Duration
	failures  map[string]int
	hits      map[string]int
}

// NewMockServer starts a mock receiver loaded with SetDefaultData.
func NewMockServer() *MockServer {
	m := &MockServer{}
	m.Reset()

	mux := http.NewServeMux()
	mux.HandleFunc(PathBouquets, m.handleBouquets)
	mux.HandleFunc(PathServices, m.handleServices)
	mux.HandleFunc(PathEPG, m.handleEPG)
	m.Server = httptest.NewServer(mux)
	return m
}

// Reset drops all configuration and reloads the default data.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bouquets = nil
	m.services = make(map[string][]Service)
	m.epgEvents = make(map[string][]EPGEvent)
	m.delay = make(map[string]time.Duration)
	m.failures = make(map[string]int)
	m.hits = make(map[string]int)
	m.setDefaultDataLocked()
}

// SetDefaultData replaces the data with two bouquets sharing ARD HD and ZDF
// HD, a marker, and two ARD events.
func (m *MockServer) SetDefaultData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bouquets = nil
	m.services = make(map[string][]Service)
	m.epgEvents = make(map[string][]EPGEvent)
	m.setDefaultDataLocked()
}

func (m *MockServer) setDefaultDataLocked() {
	m.bouquets = [][2]string{
		{MockPremiumBouquet, "Premium"},
		{MockHDBouquet, "HD Channels"},
	}
	m.services[MockPremiumBouquet] = []Service{
		{Ref: MockARDRef, Name: "ARD HD"},
		{Ref: "1:64:1:0:0:0:0:0:0:0::--- Private ---", Name: "--- Private ---"},
		{Ref: MockZDFRef, Name: "ZDF HD"},
		{Ref: "1:0:1:6DCA:44D:1:C00000:0:0:0:", Name: "RTL"},
	}
	m.services[MockHDBouquet] = []Service{
		{Ref: MockARDRef, Name: "ARD HD"},
		{Ref: MockZDFRef, Name: "ZDF HD"},
		{Ref: "1:0:19:2855:401:1:C00000:0:0:0:", Name: "RTL HD"},
	}
	m.epgEvents[MockARDRef] = []EPGEvent{
		{ID: 32845, Title: "Tagesschau", Description: "Nachrichten und Wetterbericht", Begin: 1700000000, Duration: 900},
		{ID: 32846, Title: "Tatort", Description: "Krimiserie", Begin: 1700000900, Duration: 5400},
	}
}

// AddBouquet appends a bouquet.
func (m *MockServer) AddBouquet(ref, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bouquets = append(m.bouquets, [2]string{ref, name})
}

// AddService appends a service to a bouquet.
func (m *MockServer) AddService(bouquetRef, serviceRef, serviceName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[bouquetRef] = append(m.services[bouquetRef], Service{Ref: serviceRef, Name: serviceName})
}

// AddEPGEvent appends a guide event to a service.
func (m *MockServer) AddEPGEvent(serviceRef string, event EPGEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epgEvents[serviceRef] = append(m.epgEvents[serviceRef], event)
}

// SetDelay delays every answer of endpoint by d.
func (m *MockServer) SetDelay(endpoint string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay[endpoint] = d
}

// SetFailures makes endpoint answer 500 for the next count requests.
func (m *MockServer) SetFailures(endpoint string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[endpoint] = count
}

// Hits returns how many requests endpoint has received.
func (m *MockServer) Hits(endpoint string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[endpoint]
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// enter counts the hit, applies the configured delay and reports whether the
// request should fail.
func (m *MockServer) enter(endpoint string) bool {
	m.mu.Lock()
	m.hits[endpoint]++
	d := m.delay[endpoint]
	fail := m.failures[endpoint] > 0
	if fail {
		m.failures[endpoint]--
	}
	m.mu.Unlock()

	if d > 0 {
		time.Sleep(d)
	}
	return fail
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (m *MockServer) handleBouquets(w http.ResponseWriter, _ *http.Request) {
	if m.enter(PathBouquets) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	m.mu.Lock()
	list := make([][]string, 0, len(m.bouquets))
	for _, b := range m.bouquets {
		list = append(list, []string{b[0], b[1]})
	}
	m.mu.Unlock()
	writeJSON(w, bouquetsResponse{Bouquets: list})
}

func (m *MockServer) handleServices(w http.ResponseWriter, r *http.Request) {
	if m.enter(PathServices) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	ref := r.URL.Query().Get("sRef")
	if ref == "" {
		http.Error(w, "Missing sRef parameter", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	svcs, ok := m.services[ref]
	svcs = append([]Service(nil), svcs...)
	m.mu.Unlock()
	if !ok {
		http.Error(w, "Bouquet not found", http.StatusNotFound)
		return
	}
	writeJSON(w, servicesResponse{Services: svcs})
}

func (m *MockServer) handleEPG(w http.ResponseWriter, r *http.Request) {
	if m.enter(PathEPG) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	ref := r.URL.Query().Get("sRef")
	if ref == "" {
		http.Error(w, "Missing sRef parameter", http.StatusBadRequest)
		return
	}
	m.mu.Lock()
	events := append([]EPGEvent{}, m.epgEvents[ref]...)
	m.mu.Unlock()
	writeJSON(w, EPGResponse{Result: true, Events: events})
}
