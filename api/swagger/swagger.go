package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Service Center API",
        "description": "Work item lifecycle engine: assignments, handoffs, SLA tickets",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Login, refresh, password management"},
        {"name": "WorkItems", "description": "Work item CRUD and lifecycle"},
        {"name": "Assignments", "description": "Assignment state machine and handoffs"},
        {"name": "Tickets", "description": "SLA ticket engine"},
        {"name": "Roles", "description": "Role and permission administration"},
        {"name": "Exports", "description": "Work order reports"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshTokenRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/work-items": {
            "get": {
                "tags": ["WorkItems"],
                "summary": "List work items",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "category_id", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["WorkItems"],
                "summary": "Create work item and open its resolution SLA ticket",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateWorkItemRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/work-items/{id}/complete": {
            "post": {
                "tags": ["WorkItems"],
                "summary": "Complete work item, cancelling its open SLA tickets",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Active assignment still in flight"}
                }
            }
        },
        "/work-items/{id}/history": {
            "get": {
                "tags": ["WorkItems"],
                "summary": "Chain of custody: assignments with handoff records",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/assignments": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Assign work item to a worker",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAssignmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "CONFLICTING_ASSIGNMENT"}
                }
            }
        },
        "/assignments/{id}/accept": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Worker accepts the assignment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "INVALID_TRANSITION"}
                }
            }
        },
        "/assignments/{id}/submit": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Worker submits finished work",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitAssignmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/assignments/{id}/handoff": {
            "post": {
                "tags": ["Assignments"],
                "summary": "Hand off the assignment to another worker",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/HandoffRequest"}}
                ],
                "responses": {
                    "201": {"description": "Successor assignment created"},
                    "409": {"description": "INVALID_HANDOFF_STATE"}
                }
            }
        },
        "/sla-tickets": {
            "post": {
                "tags": ["Tickets"],
                "summary": "Open an SLA ticket against a subject",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenTicketRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"}
                }
            }
        },
        "/sla-tickets/{id}/resolve": {
            "post": {
                "tags": ["Tickets"],
                "summary": "Resolve a ticket; idempotent on terminal tickets",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveTicketRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/sla-tickets/sweep": {
            "post": {
                "tags": ["Tickets"],
                "summary": "Run the breach sweep",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Breached count"}
                }
            }
        },
        "/exports/work-orders/{id}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download work order report",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Report content"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refresh_token": {"type": "string"}
            },
            "required": ["refresh_token"]
        },
        "CreateWorkItemRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "category_id": {"type": "string"},
                "estimate_cents": {"type": "integer"},
                "billable": {"type": "boolean"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "parent_id": {"type": "string"}
            },
            "required": ["title"]
        },
        "CreateAssignmentRequest": {
            "type": "object",
            "properties": {
                "work_item_id": {"type": "string"},
                "user_id": {"type": "string"}
            },
            "required": ["work_item_id", "user_id"]
        },
        "SubmitAssignmentRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            },
            "required": ["notes"]
        },
        "HandoffRequest": {
            "type": "object",
            "properties": {
                "to_user_id": {"type": "string"},
                "reason": {"type": "string"}
            },
            "required": ["to_user_id", "reason"]
        },
        "OpenTicketRequest": {
            "type": "object",
            "properties": {
                "subject_kind": {"type": "string", "enum": ["work_item", "assignment", "enquiry"]},
                "subject_id": {"type": "string"},
                "kind": {"type": "string", "enum": ["response", "resolution"]},
                "time_limit_minutes": {"type": "integer"},
                "user_id": {"type": "string"},
                "contact_id": {"type": "string"}
            },
            "required": ["subject_kind", "subject_id", "kind", "time_limit_minutes"]
        },
        "ResolveTicketRequest": {
            "type": "object",
            "properties": {
                "outcome": {"type": "string", "enum": ["met", "cancelled"]}
            },
            "required": ["outcome"]
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
