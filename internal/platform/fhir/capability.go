package fhir

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// CapabilityConfig holds top-level server metadata for the CapabilityStatement.
type CapabilityConfig struct {
	ServerName    string
	ServerVersion string
	Description   string
	BaseURL       string
}

// OperationCapability describes a resource-level operation.
type OperationCapability struct {
	Name          string
	Definition    string
	Documentation string
}

// CapabilityStatement builds the /fhir/metadata response. The server exposes
// three terminology resource types, each through its standard operation; no
// resource instances are stored, so there are no CRUD interactions to
// declare.
func CapabilityStatement(cfg CapabilityConfig) map[string]interface{} {
	if cfg.ServerName == "" {
		cfg.ServerName = "AYUSH Bridge"
	}
	if cfg.Description == "" {
		cfg.Description = "NAMASTE / ICD-11 TM2 terminology server"
	}

	resources := []map[string]interface{}{
		terminologyResource("CodeSystem", OperationCapability{
			Name:          "$lookup",
			Definition:    "http://hl7.org/fhir/OperationDefinition/CodeSystem-lookup",
			Documentation: "Look up a concept by system and code",
		}),
		terminologyResource("ConceptMap", OperationCapability{
			Name:          "$translate",
			Definition:    "http://hl7.org/fhir/OperationDefinition/ConceptMap-translate",
			Documentation: "Translate an ICD-11 TM2 concept into NAMASTE codings",
		}),
		terminologyResource("ValueSet", OperationCapability{
			Name:          "$expand",
			Definition:    "http://hl7.org/fhir/OperationDefinition/ValueSet-expand",
			Documentation: "Expand the terminology with a text filter",
		}),
	}

	rest := map[string]interface{}{
		"mode":     "server",
		"resource": resources,
		"security": map[string]interface{}{
			"cors":        true,
			"description": "Bearer token (JWT) outside development mode",
		},
	}

	return map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format("2006-01-02"),
		"kind":         "instance",
		"fhirVersion":  "4.0.1",
		"format":       []string{"application/fhir+json"},
		"software": map[string]string{
			"name":    cfg.ServerName,
			"version": cfg.ServerVersion,
		},
		"implementation": map[string]string{
			"description": cfg.Description,
			"url":         cfg.BaseURL,
		},
		"rest": []map[string]interface{}{rest},
	}
}

func terminologyResource(resourceType string, ops ...OperationCapability) map[string]interface{} {
	operations := make([]map[string]interface{}, len(ops))
	for i, op := range ops {
		o := map[string]interface{}{
			"name":       op.Name,
			"definition": op.Definition,
		}
		if op.Documentation != "" {
			o["documentation"] = op.Documentation
		}
		operations[i] = o
	}

	return map[string]interface{}{
		"type":       resourceType,
		"versioning": "no-version",
		"operation":  operations,
	}
}

// CapabilityHandler serves the CapabilityStatement metadata endpoint.
type CapabilityHandler struct {
	cfg CapabilityConfig
}

// NewCapabilityHandler creates a handler with the given server metadata.
func NewCapabilityHandler(cfg CapabilityConfig) *CapabilityHandler {
	return &CapabilityHandler{cfg: cfg}
}

// RegisterRoutes registers the metadata endpoint on the provided Echo group.
func (h *CapabilityHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/metadata", h.GetMetadata)
}

// GetMetadata returns the full CapabilityStatement.
func (h *CapabilityHandler) GetMetadata(c echo.Context) error {
	return c.JSON(http.StatusOK, CapabilityStatement(h.cfg))
}
