package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/health": {
            "get": {
                "tags": ["system"],
                "summary": "Liveness check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "API is running", "schema": {"$ref": "#/definitions/HealthResponse"}}
                }
            }
        },
        "/projects": {
            "get": {
                "tags": ["projects"],
                "summary": "List projects",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Projects in insertion order"}
                }
            }
        },
        "/articles": {
            "get": {
                "tags": ["articles"],
                "summary": "List articles",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Articles in insertion order"}
                }
            }
        },
        "/contact": {
            "post": {
                "tags": ["contact"],
                "summary": "Submit the contact form",
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "parameters": [
                    {
                        "in": "body",
                        "name": "request",
                        "required": true,
                        "schema": {"$ref": "#/definitions/ContactRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "Message sent"},
                    "400": {"description": "Field validation failed", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Blocked by the attack pattern scan", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "429": {"description": "Rate limited; see retryAfter", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Delivery failed", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/contact/health": {
            "get": {
                "tags": ["contact"],
                "summary": "E-mail transport health",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Transport verified"},
                    "503": {"description": "Transport unavailable", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/admin/projects": {
            "get": {
                "tags": ["projects"],
                "summary": "List projects",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Projects"},
                    "401": {"description": "Unauthorized"},
                    "403": {"description": "IP not allowed"}
                }
            },
            "post": {
                "tags": ["projects"],
                "summary": "Create a project",
                "description": "JSON or multipart/form-data with an optional image file (jpeg, png or webp, at most 5MB). Either image or imageUrl is required.",
                "consumes": ["application/json", "multipart/form-data"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/Project"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Missing fields", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized"},
                    "403": {"description": "IP not allowed"}
                }
            }
        },
        "/admin/projects/{id}": {
            "get": {
                "tags": ["projects"],
                "summary": "Get a project",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "Project"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["projects"],
                "summary": "Update a project",
                "description": "Partial update; omitted fields are kept.",
                "consumes": ["application/json", "multipart/form-data"],
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "Updated"}, "404": {"description": "Not found"}}
            },
            "delete": {
                "tags": ["projects"],
                "summary": "Delete a project",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        },
        "/admin/articles": {
            "get": {
                "tags": ["articles"],
                "summary": "List articles",
                "security": [{"BearerAuth": []}],
                "responses": {"200": {"description": "Articles"}}
            },
            "post": {
                "tags": ["articles"],
                "summary": "Create an article",
                "consumes": ["application/json", "multipart/form-data"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/Article"}}
                ],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Missing fields"}}
            }
        },
        "/admin/articles/{id}": {
            "get": {
                "tags": ["articles"],
                "summary": "Get an article",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "Article"}, "404": {"description": "Not found"}}
            },
            "put": {
                "tags": ["articles"],
                "summary": "Update an article",
                "consumes": ["application/json", "multipart/form-data"],
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "Updated"}, "404": {"description": "Not found"}}
            },
            "delete": {
                "tags": ["articles"],
                "summary": "Delete an article",
                "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}],
                "responses": {"200": {"description": "Deleted"}, "404": {"description": "Not found"}}
            }
        }
    },
    "definitions": {
        "HealthResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "timestamp": {"type": "string"},
                "environment": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "ContactRequest": {
            "type": "object",
            "required": ["name", "email", "message"],
            "properties": {
                "name": {"type": "string", "minLength": 2, "maxLength": 100},
                "email": {"type": "string", "maxLength": 254},
                "phone": {"type": "string", "minLength": 8, "maxLength": 20},
                "message": {"type": "string", "minLength": 10, "maxLength": 5000}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "error": {"type": "string"},
                "retryAfter": {"type": "integer"},
                "errors": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "field": {"type": "string"},
                            "message": {"type": "string"}
                        }
                    }
                }
            }
        },
        "Project": {
            "type": "object",
            "required": ["title", "category", "location", "year", "description"],
            "properties": {
                "id": {"type": "integer"},
                "title": {"type": "string"},
                "category": {"type": "string"},
                "location": {"type": "string"},
                "year": {"type": "string"},
                "image": {"type": "string"},
                "imageUrl": {"type": "string"},
                "description": {"type": "string"},
                "sketchfabId": {"type": "string"},
                "sketchfabTitle": {"type": "string"}
            }
        },
        "Article": {
            "type": "object",
            "required": ["title", "content", "author", "category"],
            "properties": {
                "id": {"type": "integer"},
                "title": {"type": "string"},
                "content": {"type": "string"},
                "author": {"type": "string"},
                "category": {"type": "string"},
                "date": {"type": "string"},
                "imageUrl": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Type 'Bearer' followed by a space and the admin token"
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3001",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "Site API",
	Description:      "Contact form, landing data and admin content API",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
