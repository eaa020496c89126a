// Package docs registers the OpenAPI description of the REST surface with
// swag, which gin-swagger serves under /swagger/*any. It mirrors the godoc
// annotations on the handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/groups": {
            "get": {
                "operationId": "listGroups", "tags": ["Groups"], "summary": "List my groups",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListGroupsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "operationId": "createGroup", "tags": ["Groups"], "summary": "Create a group",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateGroupRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.GroupView"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{id}/join": {
            "post": {
                "operationId": "joinGroup", "tags": ["Groups"], "summary": "Join a group",
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "Already a member", "schema": {"$ref": "#/definitions/handlers.JoinGroupResponse"}},
                    "201": {"description": "Joined", "schema": {"$ref": "#/definitions/handlers.JoinGroupResponse"}},
                    "404": {"description": "Group not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{id}/leave": {
            "post": {
                "operationId": "leaveGroup", "tags": ["Groups"], "summary": "Leave a group",
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {
                    "204": {"description": "Left"},
                    "403": {"description": "Not a member", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/groups/{id}/messages": {
            "get": {
                "operationId": "listMessages", "tags": ["Messages"], "summary": "List group messages",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "query", "name": "channelId", "type": "string"},
                    {"in": "query", "name": "cursor", "type": "string"},
                    {"in": "query", "name": "limit", "type": "integer", "minimum": 1, "maximum": 100, "default": 50},
                    {"in": "header", "name": "If-None-Match", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListMessagesResponse"}},
                    "304": {"description": "Not modified"},
                    "403": {"description": "Not a member", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "operationId": "postMessage", "tags": ["Messages"], "summary": "Send a message",
                "consumes": ["application/json"], "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "id", "type": "string", "required": true},
                    {"in": "header", "name": "Idempotency-Key", "type": "string"},
                    {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/handlers.PostMessageResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.PostMessageResponse"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Not a member", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Channel not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Persist failed, retry", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "operationId": "listNotifications", "tags": ["Notifications"], "summary": "List my notifications",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "unread", "type": "boolean"},
                    {"in": "query", "name": "cursor", "type": "string"},
                    {"in": "query", "name": "limit", "type": "integer", "minimum": 1, "maximum": 100, "default": 20}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListNotificationsResponse"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "operationId": "markNotificationRead", "tags": ["Notifications"], "summary": "Mark a notification read",
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MarkReadResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_a_member"},
                "message": {"type": "string"}
            }
        },
        "handlers.GroupView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "name": {"type": "string"},
                "createdBy": {"type": "string"}, "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.MembershipView": {
            "type": "object",
            "properties": {
                "groupId": {"type": "string"}, "userId": {"type": "string"},
                "role": {"type": "string"}, "joinedAt": {"type": "string", "format": "date-time"}
            }
        },
        "handlers.CreateGroupRequest": {
            "type": "object", "required": ["name"],
            "properties": {"name": {"type": "string", "example": "Swahili beginners"}}
        },
        "handlers.ListGroupsResponse": {
            "type": "object",
            "properties": {"groups": {"type": "array", "items": {"$ref": "#/definitions/handlers.GroupView"}}}
        },
        "handlers.JoinGroupResponse": {
            "type": "object",
            "properties": {"membership": {"$ref": "#/definitions/handlers.MembershipView"}, "created": {"type": "boolean"}}
        },
        "handlers.PostMessageRequest": {
            "type": "object", "required": ["body"],
            "properties": {
                "body": {"type": "string", "example": "Habari za asubuhi!"},
                "channelId": {"type": "string"},
                "clientMessageId": {"type": "string"},
                "metadata": {"type": "object"}
            }
        },
        "handlers.PostMessageResponse": {
            "type": "object",
            "properties": {"message": {"$ref": "#/definitions/realtime.MessageView"}}
        },
        "handlers.ListMessagesResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/realtime.MessageView"}},
                "nextCursor": {"type": "string"}
            }
        },
        "handlers.ListNotificationsResponse": {
            "type": "object",
            "properties": {
                "notifications": {"type": "array", "items": {"$ref": "#/definitions/realtime.NotificationView"}},
                "nextCursor": {"type": "string"},
                "unreadCount": {"type": "integer"}
            }
        },
        "handlers.MarkReadResponse": {
            "type": "object",
            "properties": {"notification": {"$ref": "#/definitions/realtime.NotificationView"}}
        },
        "realtime.MessageView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "groupId": {"type": "string"}, "channelId": {"type": "string"},
                "senderId": {"type": "string"}, "body": {"type": "string"}, "metadata": {"type": "object"},
                "clientMessageId": {"type": "string"}, "createdAt": {"type": "string", "format": "date-time"}
            }
        },
        "realtime.NotificationView": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}, "userId": {"type": "string"}, "type": {"type": "string"},
                "body": {"type": "string"}, "groupId": {"type": "string"}, "channelId": {"type": "string"},
                "messageId": {"type": "string"}, "senderId": {"type": "string"}, "data": {"type": "object"},
                "readAt": {"type": "string", "format": "date-time"}, "createdAt": {"type": "string", "format": "date-time"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
// (for example BasePath from configuration).
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Group messaging API",
	Description:      "REST surface of the realtime group messaging core. Live traffic uses the websocket at /ws.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
