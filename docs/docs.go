// Package docs registers the OpenAPI document served at /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Expirywatch"
        },
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/expiry": {
            "get": {
                "description": "Buckets products into expired / critical / warning relative to today. The urgent window drives notifications; the display window drives on-screen grouping.",
                "produces": ["application/json"],
                "tags": ["expiry"],
                "summary": "Classify products by expiry",
                "parameters": [
                    {
                        "enum": ["display", "urgent"],
                        "type": "string",
                        "default": "display",
                        "description": "Classification window",
                        "name": "window",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/expiry.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/notifications/state": {
            "get": {
                "description": "Returns the scheduler state, the last calendar day a notification was delivered, and the snapshot size.",
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Notification state",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/products/snapshot": {
            "post": {
                "description": "Replaces the scheduler snapshot. Expiry values may be ISO-8601 strings, {\"seconds\": n} objects or epoch milliseconds.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["notifications"],
                "summary": "Push a product snapshot",
                "parameters": [
                    {
                        "description": "Product snapshot",
                        "name": "body",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.SnapshotRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/digest/run": {
            "post": {
                "description": "Composes and sends the daily digest immediately. Mail transport failures are reported as 502 and not retried.",
                "produces": ["application/json"],
                "tags": ["digest"],
                "summary": "Run the email digest",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/digest.RunResult"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "expiry.Product": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "source": {"type": "string"},
                "expiry": {}
            }
        },
        "expiry.Entry": {
            "type": "object",
            "properties": {
                "product": {"$ref": "#/definitions/expiry.Product"},
                "expires": {"type": "string", "format": "date-time"},
                "day": {"type": "string", "format": "date"},
                "days_left": {"type": "integer"},
                "bucket": {"type": "string", "enum": ["expired", "critical", "warning"]}
            }
        },
        "expiry.Result": {
            "type": "object",
            "properties": {
                "window": {"type": "string"},
                "today": {"type": "string", "format": "date"},
                "buckets": {
                    "type": "object",
                    "additionalProperties": {"type": "array", "items": {"$ref": "#/definitions/expiry.Entry"}}
                },
                "invalid": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "product": {"$ref": "#/definitions/expiry.Product"},
                            "error": {"type": "string"}
                        }
                    }
                }
            }
        },
        "handler.SnapshotRequest": {
            "type": "object",
            "properties": {
                "products": {"type": "array", "items": {"$ref": "#/definitions/expiry.Product"}}
            }
        },
        "digest.RunResult": {
            "type": "object",
            "properties": {
                "run_id": {"type": "string"},
                "day": {"type": "string", "format": "date"},
                "sent": {"type": "boolean"},
                "items": {"type": "integer"},
                "invalid": {"type": "integer"},
                "subject": {"type": "string"}
            }
        },
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8000",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Expirywatch API",
	Description:      "Expiry classification, daily notification state and email digest for a perishable inventory.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
