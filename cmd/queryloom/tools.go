package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/queryloom/queryloom/core/protocol"
	"github.com/queryloom/queryloom/tools"
)

const scriptTimeout = 30 * time.Second

// registerBuiltinTools wires the document-store tools for the data-query
// branch and the script runner for the code branch. Collections are JSON
// arrays in files named <collection>.json under dataDir.
func registerBuiltinTools(registry *tools.Registry, dataDir string) {
	must(registry.Register(protocol.Tool{
		Name:        "find_documents",
		Description: "Finds documents in a collection matching the given field values.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"collection": map[string]any{
					"type":        "string",
					"description": "Collection name to query.",
				},
				"filter": map[string]any{
					"type":        "object",
					"description": "Field/value pairs a document must match. Empty matches all.",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of documents to return.",
				},
			},
			"required": []string{"collection"},
		},
	}, findDocumentsHandler(dataDir)))

	must(registry.Register(protocol.Tool{
		Name:        "list_collections",
		Description: "Lists the available document collections.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}, listCollectionsHandler(dataDir)))

	must(registry.Register(protocol.Tool{
		Name:        "run_script",
		Description: "Executes a python script and returns its combined output.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "The python source to execute.",
				},
			},
			"required": []string{"code"},
		},
	}, handleRunScript))
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("failed to register tool: %v", err))
	}
}

func findDocumentsHandler(dataDir string) tools.Handler {
	return func(_ context.Context, raw json.RawMessage) (tools.Result, error) {
		var args struct {
			Collection string         `json:"collection"`
			Filter     map[string]any `json:"filter"`
			Limit      int            `json:"limit"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return tools.Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
		}
		if args.Collection == "" {
			return tools.Result{Content: "collection is required", IsError: true}, nil
		}

		docs, err := loadCollection(dataDir, args.Collection)
		if err != nil {
			return tools.Result{Content: err.Error(), IsError: true}, nil
		}

		matched := make([]map[string]any, 0, len(docs))
		for _, doc := range docs {
			if matches(doc, args.Filter) {
				matched = append(matched, doc)
			}
			if args.Limit > 0 && len(matched) >= args.Limit {
				break
			}
		}

		out, err := json.Marshal(matched)
		if err != nil {
			return tools.Result{Content: err.Error(), IsError: true}, nil
		}
		return tools.Result{Content: string(out)}, nil
	}
}

func listCollectionsHandler(dataDir string) tools.Handler {
	return func(_ context.Context, _ json.RawMessage) (tools.Result, error) {
		entries, err := os.ReadDir(dataDir)
		if err != nil {
			return tools.Result{Content: err.Error(), IsError: true}, nil
		}

		var names []string
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}
			names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
		}
		return tools.Result{Content: strings.Join(names, "\n")}, nil
	}
}

func loadCollection(dataDir, name string) ([]map[string]any, error) {
	if strings.ContainsAny(name, "/\\.") {
		return nil, fmt.Errorf("invalid collection name: %s", name)
	}

	data, err := os.ReadFile(filepath.Join(dataDir, name+".json"))
	if err != nil {
		return nil, fmt.Errorf("collection %s not found", name)
	}

	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("collection %s is not a JSON array: %w", name, err)
	}
	return docs, nil
}

func matches(doc, filter map[string]any) bool {
	for key, want := range filter {
		got, exists := doc[key]
		if !exists || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func handleRunScript(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return tools.Result{Content: "invalid arguments: " + err.Error(), IsError: true}, nil
	}
	if args.Code == "" {
		return tools.Result{Content: "code is required", IsError: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", "-c", args.Code)
	out, err := cmd.CombinedOutput()
	if err != nil {
		content := strings.TrimSpace(string(out))
		if content == "" {
			content = err.Error()
		}
		return tools.Result{Content: content, IsError: true}, nil
	}
	return tools.Result{Content: strings.TrimSpace(string(out))}, nil
}
