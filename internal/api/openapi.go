package api

// buildOpenAPIDoc describes the routes served by setupRoutes.
func buildOpenAPIDoc() map[string]any {
	secured := []any{map[string]any{"BearerAuth": []string{}}}
	op := func(id, summary string, responses map[string]any) map[string]any {
		return map[string]any{
			"operationId": id,
			"summary":     summary,
			"responses":   responses,
			"security":    secured,
		}
	}
	ok := func(desc string) map[string]any {
		return map[string]any{"200": map[string]any{"description": desc}}
	}

	setGroupSize := op("setGroupSize", "Change the scene length", map[string]any{
		"200": map[string]any{"description": "Group size applied"},
		"400": map[string]any{"description": "Bad request"},
		"422": map[string]any{"description": "Rejected value"},
	})
	setGroupSize["requestBody"] = map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type":     "object",
					"required": []string{"group_size"},
					"properties": map[string]any{
						"group_size": map[string]any{"type": "integer", "minimum": 1},
					},
				},
			},
		},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "hype scene stage",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{"get": map[string]any{
				"operationId": "healthz",
				"summary":     "Liveness and stage state",
				"responses":   ok("Healthy"),
			}},
			"/stats":               map[string]any{"get": op("stats", "Stage counters", ok("Counters"))},
			"/stage/children":      map[string]any{"get": op("children", "Stage elements in index order", ok("Children"))},
			"/stage/group-size":    map[string]any{"put": setGroupSize},
			"/runs":                map[string]any{"get": op("listRuns", "Journaled runs, newest first", ok("Runs"))},
			"/runs/{runID}":        map[string]any{"get": op("getRun", "One run", ok("Run"))},
			"/runs/{runID}/scenes": map[string]any{"get": op("runScenes", "Scene log of a run", ok("Scenes"))},
			"/events":              map[string]any{"get": op("events", "Server-sent stage events", ok("Event stream"))},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}
