// Package docs holds the OpenAPI description served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/schema": {
            "get": {
                "produces": ["application/json"],
                "tags": ["predict"],
                "summary": "Input schema",
                "description": "Field catalogue in form order, the model feature order and default values",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.SchemaResponse"}}
                }
            }
        },
        "/api/v1/predict": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["predict"],
                "summary": "Predict and explain",
                "description": "Scores one input and attributes the prediction to its features. An explanation failure keeps the prediction and sets explanation_error.",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.PredictRequest"}},
                    {"type": "boolean", "name": "chart", "in": "query", "description": "Include the waterfall chart as a base64 PNG data URI"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PredictResponse"}},
                    "400": {"description": "Invalid input", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "422": {"description": "Value cannot be encoded", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/errors.Response"}},
                    "500": {"description": "Prediction failed", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/api/v1/encode": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["predict"],
                "summary": "Encode values",
                "description": "Validates values and returns the model feature vector without scoring",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/types.PredictRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.EncodeResponse"}},
                    "400": {"description": "Invalid input", "schema": {"$ref": "#/definitions/errors.Response"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.HealthResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["ops"],
                "summary": "Request and prediction counters",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "types.PredictRequest": {
            "type": "object",
            "required": ["values"],
            "properties": {
                "values": {"type": "object", "additionalProperties": true},
                "defaults": {"type": "boolean"}
            }
        },
        "explain.Contribution": {
            "type": "object",
            "properties": {
                "feature": {"type": "string"},
                "value": {"type": "number"},
                "data": {"type": "number"}
            }
        },
        "explain.Attribution": {
            "type": "object",
            "properties": {
                "method": {"type": "string", "enum": ["tree", "kernel"]},
                "baseline": {"type": "number"},
                "prediction": {"type": "number"},
                "values": {"type": "array", "items": {"$ref": "#/definitions/explain.Contribution"}},
                "fallback": {"type": "boolean"}
            }
        },
        "analysis.Contributor": {
            "type": "object",
            "properties": {
                "feature": {"type": "string"},
                "data": {"type": "number"},
                "contribution": {"type": "number"}
            }
        },
        "analysis.FeatureVector": {
            "type": "object",
            "properties": {
                "names": {"type": "array", "items": {"type": "string"}},
                "values": {"type": "array", "items": {"type": "number"}}
            }
        },
        "types.PredictResponse": {
            "type": "object",
            "properties": {
                "prediction": {"type": "number"},
                "model": {"type": "string"},
                "attribution": {"$ref": "#/definitions/explain.Attribution"},
                "contributors": {"type": "array", "items": {"$ref": "#/definitions/analysis.Contributor"}},
                "explanation_error": {"type": "string"},
                "features": {"$ref": "#/definitions/analysis.FeatureVector"},
                "chart": {"type": "string"},
                "duration_ms": {"type": "integer"}
            }
        },
        "types.EncodeResponse": {
            "type": "object",
            "properties": {
                "features": {"$ref": "#/definitions/analysis.FeatureVector"}
            }
        },
        "types.SchemaResponse": {
            "type": "object",
            "properties": {
                "fields": {"type": "array", "items": {"type": "object"}},
                "feature_names": {"type": "array", "items": {"type": "string"}},
                "defaults": {"type": "object", "additionalProperties": true},
                "model": {"type": "string"},
                "model_kind": {"type": "string"}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "model": {"type": "string"},
                "model_kind": {"type": "string"},
                "features": {"type": "integer"},
                "uptime": {"type": "string"}
            }
        },
        "errors.Response": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "category": {"type": "string"},
                "code": {"type": "string"},
                "field": {"type": "string"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Stacking Predict API",
	Description:      "Stacking regressor predictions with SHAP feature attributions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
