package document

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sensorgrid-systems/sensorgrid-ingest/internal/store"
)

// mockOpenSearch emulates the handful of OpenSearch endpoints the adapter
// uses, with real merge semantics for the update API.
type mockOpenSearch struct {
	mu       sync.Mutex
	docs     []map[string]any
	alerts   []map[string]any
	metadata map[string]map[string]any
	nextID   int
}

func newMockOpenSearch() *mockOpenSearch {
	return &mockOpenSearch{metadata: make(map[string]map[string]any)}
}

// merge applies OpenSearch partial-update semantics: objects merge
// recursively, scalars and arrays are replaced.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if sv, ok := v.(map[string]any); ok {
			if dv, ok := dst[k].(map[string]any); ok {
				merge(dv, sv)
				continue
			}
		}
		dst[k] = v
	}
}

func (m *mockOpenSearch) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		m.mu.Lock()
		defer m.mu.Unlock()

		switch {
		case r.URL.Path == "/":
			fmt.Fprint(w, `{"name":"test-node","cluster_name":"test","version":{"number":"2.0.0"}}`)

		case r.URL.Path == "/sensor-data/_doc" || r.URL.Path == "/sensor-alerts/_doc":
			var doc map[string]any
			json.NewDecoder(r.Body).Decode(&doc)
			m.nextID++
			if strings.HasPrefix(r.URL.Path, "/sensor-data") {
				m.docs = append(m.docs, doc)
			} else {
				m.alerts = append(m.alerts, doc)
			}
			w.WriteHeader(http.StatusCreated)
			fmt.Fprintf(w, `{"_id":"%d","result":"created"}`, m.nextID)

		case strings.HasPrefix(r.URL.Path, "/device-metadata/_update/"):
			id := strings.TrimPrefix(r.URL.Path, "/device-metadata/_update/")
			var req struct {
				Doc         map[string]any `json:"doc"`
				DocAsUpsert bool           `json:"doc_as_upsert"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			existing, ok := m.metadata[id]
			if !ok {
				if !req.DocAsUpsert {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				existing = make(map[string]any)
				m.metadata[id] = existing
			}
			merge(existing, req.Doc)
			fmt.Fprintf(w, `{"_id":"%s","result":"updated"}`, id)

		case strings.HasPrefix(r.URL.Path, "/device-metadata/_doc/"):
			id := strings.TrimPrefix(r.URL.Path, "/device-metadata/_doc/")
			source, ok := m.metadata[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, `{"found":false}`)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"_id": id, "found": true, "_source": source})

		case strings.HasPrefix(r.URL.Path, "/sensor-data/_search"):
			hits := make([]map[string]any, 0, len(m.docs))
			for _, doc := range m.docs {
				hits = append(hits, map[string]any{"_source": doc})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"hits": map[string]any{"hits": hits},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func setupStore(t *testing.T) (*Store, *mockOpenSearch) {
	t.Helper()
	mock := newMockOpenSearch()
	server := httptest.NewServer(mock.handler())
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.URL = server.URL
	cfg.Username = ""
	cfg.Insecure = false

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, mock
}

func TestInsertSensorDocument(t *testing.T) {
	s, mock := setupStore(t)

	doc := &store.SensorDocument{
		DeviceID:   "s1",
		SensorType: "air_quality",
		Timestamp:  time.Now(),
		Body: map[string]any{
			"device_id":   "s1",
			"sensor_type": "air_quality",
			"pm2_5":       12.0,
			"location":    "lab",
		},
	}
	id, err := s.InsertSensorDocument(context.Background(), doc)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated document id")
	}
	if len(mock.docs) != 1 {
		t.Fatalf("expected 1 stored doc, got %d", len(mock.docs))
	}

	meta := mock.metadata["s1"]
	if meta == nil {
		t.Fatal("expected device metadata upsert side effect")
	}
	lastValues, _ := meta["last_values"].(map[string]any)
	if lastValues["pm2_5"] != 12.0 {
		t.Errorf("expected last_values.pm2_5 = 12, got %v", lastValues["pm2_5"])
	}
	if meta["location"] != "lab" {
		t.Errorf("expected location lab, got %v", meta["location"])
	}
}

func TestDeviceMetadataUpsertMerges(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	first := &store.SensorDocument{
		DeviceID:   "s1",
		SensorType: "air_quality",
		Body: map[string]any{
			"device_id": "s1",
			"pm2_5":     12.0,
			"co2":       450.0,
			"location":  "lab",
		},
	}
	if _, err := s.InsertSensorDocument(ctx, first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Later message sets temperature only; pm2_5/co2/location must
	// survive from the first upsert.
	second := &store.SensorDocument{
		DeviceID:   "s1",
		SensorType: "environmental",
		Body: map[string]any{
			"device_id":   "s1",
			"temperature": 22.5,
		},
	}
	if _, err := s.InsertSensorDocument(ctx, second); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	meta, err := s.DeviceMetadata(ctx, "s1")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	lastValues, _ := meta["last_values"].(map[string]any)
	if lastValues["temperature"] != 22.5 {
		t.Errorf("later value not applied: %v", lastValues)
	}
	if lastValues["pm2_5"] != 12.0 {
		t.Errorf("earlier pm2_5 must survive the merge: %v", lastValues)
	}
	if lastValues["co2"] != 450.0 {
		t.Errorf("earlier co2 must survive the merge: %v", lastValues)
	}
	if meta["location"] != "lab" {
		t.Errorf("earlier location must survive the merge: %v", meta["location"])
	}
}

func TestDeviceMetadata_UnknownDevice(t *testing.T) {
	s, _ := setupStore(t)
	meta, err := s.DeviceMetadata(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	if meta != nil {
		t.Fatalf("expected nil for unknown device, got %v", meta)
	}
}

func TestRecentDocuments(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		doc := &store.SensorDocument{
			DeviceID:   fmt.Sprintf("d%d", i),
			SensorType: "test",
			Body:       map[string]any{"device_id": fmt.Sprintf("d%d", i), "n": float64(i)},
		}
		if _, err := s.InsertSensorDocument(ctx, doc); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	docs, err := s.RecentDocuments(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 docs, got %d", len(docs))
	}
}

func TestInsertAlert(t *testing.T) {
	s, mock := setupStore(t)

	id, err := s.InsertAlert(context.Background(), &store.Alert{
		DeviceID: "d1",
		Message:  "battery low",
		Severity: "warning",
	})
	if err != nil {
		t.Fatalf("insert alert: %v", err)
	}
	if id == "" {
		t.Fatal("expected alert id")
	}
	if len(mock.alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(mock.alerts))
	}
	if mock.alerts[0]["resolved"] != false {
		t.Errorf("new alerts default to unresolved")
	}
}
