package mcpadapter

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var strategyEnum = []string{
	"lexical",
	"dense_vector",
	"sparse_expansion",
	"hybrid_fusion",
	"rank_fusion",
	"generation_only",
}

func searchProperties() map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Natural language movie query",
		},
		"strategy": map[string]interface{}{
			"type":        "string",
			"description": "Retrieval strategy",
			"enum":        strategyEnum,
			"default":     "hybrid_fusion",
		},
		"filters": map[string]interface{}{
			"type":        "array",
			"description": "Exact-match index filters. Omit to detect color and platform from the query",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field": map[string]interface{}{"type": "string"},
					"value": map[string]interface{}{"type": "string"},
				},
				"required": []string{"field", "value"},
			},
		},
	}
}

func searchMoviesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_movies",
		Description: "Search the movie index and return the top ranked movies",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: searchProperties(),
			Required:   []string{"query"},
		},
	}
}

func askMoviesTool() mcp.Tool {
	properties := searchProperties()
	properties["session_id"] = map[string]interface{}{
		"type":        "string",
		"description": "Conversation to continue. A new one is opened when omitted",
	}
	properties["use_cache"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Consult the semantic response cache before generating",
	}
	properties["threshold"] = map[string]interface{}{
		"type":        "number",
		"description": "Minimum cache similarity for a hit",
		"minimum":     0,
		"maximum":     1,
	}
	return mcp.Tool{
		Name:        "ask_movies",
		Description: "Answer a question about movies using retrieved movie descriptions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   []string{"query"},
		},
	}
}
