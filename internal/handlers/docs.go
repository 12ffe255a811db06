package handlers

import (
	"encoding/json"
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, description string, schema object) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func jsonResponse(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func listOf(item object) object {
	return object{
		"type": "object",
		"properties": object{
			"data":  object{"type": "array", "items": item},
			"count": object{"type": "integer"},
		},
	}
}

var (
	selectionParams = []object{
		queryParam("station", "Station id (default: first station by name)", object{"type": "integer"}),
		queryParam("monitor", "Monitor code, e.g. S_PM25 (default: first monitor by name)", object{"type": "string"}),
	}

	descriptiveStatsSchema = object{
		"type": "object",
		"properties": object{
			"count":  object{"type": "integer"},
			"mean":   object{"type": "number"},
			"std":    object{"type": "number", "nullable": true},
			"min":    object{"type": "number"},
			"q25":    object{"type": "number"},
			"median": object{"type": "number"},
			"q75":    object{"type": "number"},
			"max":    object{"type": "number"},
		},
	}

	measurementViewSchema = object{
		"type": "object",
		"properties": object{
			"timestamp":    object{"type": "string", "format": "date-time"},
			"value":        object{"type": "number"},
			"station_id":   object{"type": "integer"},
			"station_name": object{"type": "string", "nullable": true},
			"monitor_code": object{"type": "string"},
			"monitor_name": object{"type": "string", "nullable": true},
			"unit":         object{"type": "string", "nullable": true},
		},
	}
)

// OpenAPISpec returns the OpenAPI 3.0 document for the dashboard API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	doc := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Air Quality Platform API",
			"description": "Read-only access to station measurements ingested from JSON report exports",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8050", "description": "Local development server"},
		},
		"paths": object{
			"/api/summary": object{
				"get": object{
					"summary": "Store summary",
					"responses": object{
						"200": jsonResponse("Totals over readings holding a value", object{
							"type": "object",
							"properties": object{
								"total_measurements": object{"type": "integer"},
								"total_stations":     object{"type": "integer"},
								"total_monitors":     object{"type": "integer"},
								"first_date":         object{"type": "string", "format": "date-time"},
								"last_date":          object{"type": "string", "format": "date-time"},
								"days_covered":       object{"type": "integer"},
								"loaded_at":          object{"type": "string", "format": "date-time"},
							},
						}),
					},
				},
			},
			"/api/stations": object{
				"get": object{
					"summary": "List stations",
					"responses": object{
						"200": jsonResponse("Stations", listOf(object{
							"type": "object",
							"properties": object{
								"station_id":   object{"type": "integer"},
								"station_name": object{"type": "string"},
								"created_at":   object{"type": "string", "format": "date-time"},
							},
						})),
					},
				},
			},
			"/api/stations/{id}": object{
				"get": object{
					"summary": "Get a station",
					"parameters": []object{{
						"name":     "id",
						"in":       "path",
						"required": true,
						"schema":   object{"type": "integer"},
					}},
					"responses": object{
						"200": jsonResponse("Station", object{
							"type": "object",
							"properties": object{
								"station_id":   object{"type": "integer"},
								"station_name": object{"type": "string"},
								"created_at":   object{"type": "string", "format": "date-time"},
							},
						}),
						"400": object{"description": "Invalid station id"},
						"404": object{"description": "Station not found"},
					},
				},
			},
			"/api/monitors": object{
				"get": object{
					"summary": "List monitors",
					"responses": object{
						"200": jsonResponse("Monitors", listOf(object{
							"type": "object",
							"properties": object{
								"monitor_id":   object{"type": "integer"},
								"monitor_code": object{"type": "string"},
								"monitor_name": object{"type": "string"},
								"unit":         object{"type": "string"},
							},
						})),
					},
				},
			},
			"/api/measurements": object{
				"get": object{
					"summary":     "Get measurements",
					"description": "Readings holding a value, ordered by timestamp, with station and monitor metadata. With include_null=true, stored rows including missing readings, without metadata",
					"parameters": []object{
						queryParam("station", "Filter by station id", object{"type": "integer"}),
						queryParam("monitor", "Filter by monitor code", object{"type": "string"}),
						queryParam("start", "Lower bound (YYYY-MM-DD or RFC 3339)", object{"type": "string"}),
						queryParam("end", "Upper bound, inclusive (YYYY-MM-DD or RFC 3339)", object{"type": "string"}),
						queryParam("include_null", "Return stored rows including missing readings (default: false)", object{"type": "boolean", "default": false}),
						queryParam("page", "Page number (default: 1)", object{"type": "integer", "default": 1}),
						queryParam("limit", "Records per page (default: 1000, max: 10000)", object{"type": "integer", "default": defaultPageLimit}),
					},
					"responses": object{
						"200": jsonResponse("Successful response", object{
							"type": "object",
							"properties": object{
								"data":        object{"type": "array", "items": measurementViewSchema},
								"total":       object{"type": "integer"},
								"page":        object{"type": "integer"},
								"limit":       object{"type": "integer"},
								"total_pages": object{"type": "integer"},
							},
						}),
						"400": object{"description": "Invalid filter"},
					},
				},
			},
			"/api/statistics": object{
				"get": object{
					"summary":     "Descriptive statistics of a selection",
					"description": "Statistics of one station and monitor, overall and per day of the week (Monday first)",
					"parameters":  selectionParams,
					"responses": object{
						"200": jsonResponse("Statistics; stats is null and message is set when the selection has no readings", object{
							"type": "object",
							"properties": object{
								"station_id":   object{"type": "integer"},
								"station_name": object{"type": "string"},
								"monitor_code": object{"type": "string"},
								"monitor_name": object{"type": "string"},
								"unit":         object{"type": "string"},
								"stats":        descriptiveStatsSchema,
								"weekdays": object{
									"type": "array",
									"items": object{
										"type": "object",
										"properties": object{
											"label": object{"type": "string"},
											"count": object{"type": "integer"},
											"stats": descriptiveStatsSchema,
										},
									},
								},
								"message": object{"type": "string"},
							},
						}),
					},
				},
			},
			"/charts/{kind}.svg": object{
				"get": object{
					"summary": "Render a chart as SVG",
					"parameters": append([]object{{
						"name":     "kind",
						"in":       "path",
						"required": true,
						"schema":   object{"type": "string", "enum": []string{"timeseries", "histogram", "boxplot"}},
					}}, selectionParams...),
					"responses": object{
						"200": object{
							"description": "SVG image",
							"content":     object{"image/svg+xml": object{"schema": object{"type": "string"}}},
						},
						"404": object{"description": "Unknown chart kind"},
					},
				},
			},
			"/health": object{
				"get": object{
					"summary": "Health check",
					"responses": object{
						"200": jsonResponse("Server and store are healthy", object{
							"type":       "object",
							"properties": object{"status": object{"type": "string"}},
						}),
						"503": object{"description": "Store unreachable"},
					},
				},
			},
			"/metrics": object{
				"get": object{
					"summary": "Prometheus metrics",
					"responses": object{
						"200": object{
							"description": "Prometheus metrics in text format",
							"content":     object{"text/plain": object{"schema": object{"type": "string"}}},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
