// Package docs registers the OpenAPI document served under /swagger.
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
        "/": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Service status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/predict": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Score a worker profile",
                "parameters": [
                    {
                        "description": "Nine numeric karma features",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.PredictRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scoring.Result"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Health, model and metrics summary",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Request, prediction, cache and rate limit counters",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/model": {
            "get": {
                "produces": ["application/json"],
                "tags": ["scoring"],
                "summary": "Loaded model metadata",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "message": {"type": "string", "example": "Karma Passport AI backend running"}
            }
        },
        "types.PredictRequest": {
            "type": "object",
            "required": [
                "work_frequency", "task_success_rate", "verified_hours_worked",
                "profile_age", "platform_activity_score", "task_variety",
                "repayment_history", "default_history", "company_rating"
            ],
            "properties": {
                "work_frequency": {"type": "number", "example": 12},
                "task_success_rate": {"type": "number", "example": 0.92},
                "verified_hours_worked": {"type": "number", "example": 160},
                "profile_age": {"type": "number", "example": 14},
                "platform_activity_score": {"type": "number", "example": 45},
                "task_variety": {"type": "number", "example": 18},
                "repayment_history": {"type": "number", "example": 10},
                "default_history": {"type": "number", "example": 0},
                "company_rating": {"type": "number", "example": 4.8}
            }
        },
        "scoring.AgentScores": {
            "type": "object",
            "properties": {
                "work_frequency_agent": {"type": "number"},
                "task_success_rate_agent": {"type": "number"},
                "repayment_history_agent": {"type": "number"},
                "activity_agent": {"type": "number"}
            }
        },
        "scoring.Summary": {
            "type": "object",
            "properties": {
                "tasks_completed": {"type": "integer"},
                "total_earnings": {"type": "number"},
                "active_streak_days": {"type": "integer"},
                "average_rating": {"type": "number"}
            }
        },
        "scoring.Result": {
            "type": "object",
            "properties": {
                "karma_score": {"type": "number"},
                "risk_category": {"type": "string", "enum": ["Low Risk", "Medium Risk", "High Risk"]},
                "loan_limit": {"type": "integer"},
                "agent_scores": {"$ref": "#/definitions/scoring.AgentScores"},
                "summary": {"$ref": "#/definitions/scoring.Summary"}
            }
        },
        "errors.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"},
                "category": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Karma Passport scoring API",
	Description:      "Scores gig-worker profiles with a random-forest regressor and derives risk, loan limit and dashboard cards.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
