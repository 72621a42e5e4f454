package fhir

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestCapabilityStatement_Structure(t *testing.T) {
	cs := CapabilityStatement(CapabilityConfig{
		ServerName:    "AYUSH Bridge",
		ServerVersion: "0.3.0",
		BaseURL:       "http://localhost:8000/fhir",
	})

	if cs["resourceType"] != "CapabilityStatement" {
		t.Errorf("expected CapabilityStatement, got %v", cs["resourceType"])
	}
	if cs["fhirVersion"] != "4.0.1" {
		t.Errorf("expected fhirVersion 4.0.1, got %v", cs["fhirVersion"])
	}

	software := cs["software"].(map[string]string)
	if software["version"] != "0.3.0" {
		t.Errorf("expected version 0.3.0, got %s", software["version"])
	}

	rest := cs["rest"].([]map[string]interface{})
	if len(rest) != 1 {
		t.Fatalf("expected 1 rest entry, got %d", len(rest))
	}

	resources := rest[0]["resource"].([]map[string]interface{})
	if len(resources) != 3 {
		t.Fatalf("expected 3 resource types, got %d", len(resources))
	}

	wantOps := map[string]string{
		"CodeSystem": "$lookup",
		"ConceptMap": "$translate",
		"ValueSet":   "$expand",
	}
	for _, res := range resources {
		rt := res["type"].(string)
		want, ok := wantOps[rt]
		if !ok {
			t.Errorf("unexpected resource type %s", rt)
			continue
		}
		ops := res["operation"].([]map[string]interface{})
		if len(ops) != 1 || ops[0]["name"] != want {
			t.Errorf("%s: expected operation %s, got %v", rt, want, ops)
		}
	}
}

func TestCapabilityStatement_Defaults(t *testing.T) {
	cs := CapabilityStatement(CapabilityConfig{ServerVersion: "0.1.0"})

	software := cs["software"].(map[string]string)
	if software["name"] != "AYUSH Bridge" {
		t.Errorf("expected default server name, got %s", software["name"])
	}
}

func TestCapabilityHandler_GetMetadata(t *testing.T) {
	e := echo.New()
	h := NewCapabilityHandler(CapabilityConfig{ServerVersion: "0.3.0"})
	h.RegisterRoutes(e.Group("/fhir"))

	req := httptest.NewRequest(http.MethodGet, "/fhir/metadata", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var cs map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &cs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cs["resourceType"] != "CapabilityStatement" {
		t.Errorf("expected CapabilityStatement, got %v", cs["resourceType"])
	}
	if cs["status"] != "active" {
		t.Errorf("expected status active, got %v", cs["status"])
	}
}
