package extract

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"

	"siteaudit/internal/snapshot"
)

// schemaBlocks extracts every JSON-LD block from the document. Blocks
// that fail to parse are kept with Valid=false so the audit can report
// malformed markup instead of silently dropping it. @graph containers
// are flattened into one block per graph entry.
func schemaBlocks(rawHTML string) []snapshot.SchemaBlock {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil
	}

	var blocks []snapshot.SchemaBlock
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" &&
			strings.EqualFold(attr(n, "type"), "application/ld+json") {
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				blocks = append(blocks, parseJSONLD(n.FirstChild.Data)...)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)
	return blocks
}

func parseJSONLD(raw string) []snapshot.SchemaBlock {
	raw = strings.TrimSpace(raw)

	var top any
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return []snapshot.SchemaBlock{{
			JSONLD: raw,
			Valid:  false,
			Errors: []string{err.Error()},
		}}
	}

	switch v := top.(type) {
	case []any:
		var blocks []snapshot.SchemaBlock
		for _, entry := range v {
			blocks = append(blocks, objectBlock(entry)...)
		}
		return blocks
	default:
		return objectBlock(top)
	}
}

// objectBlock turns one parsed JSON-LD value into blocks, flattening
// @graph containers.
func objectBlock(v any) []snapshot.SchemaBlock {
	obj, ok := v.(map[string]any)
	if !ok {
		encoded, _ := json.Marshal(v)
		return []snapshot.SchemaBlock{{
			JSONLD: string(encoded),
			Valid:  false,
			Errors: []string{"JSON-LD value is not an object"},
		}}
	}

	if graph, ok := obj["@graph"].([]any); ok {
		var blocks []snapshot.SchemaBlock
		for _, entry := range graph {
			blocks = append(blocks, objectBlock(entry)...)
		}
		return blocks
	}

	encoded, _ := json.Marshal(obj)
	block := snapshot.SchemaBlock{JSONLD: string(encoded), Valid: true}
	switch t := obj["@type"].(type) {
	case string:
		block.Type = t
	case []any:
		var names []string
		for _, x := range t {
			if s, ok := x.(string); ok {
				names = append(names, s)
			}
		}
		block.Type = strings.Join(names, ",")
	}
	if block.Type == "" {
		block.Valid = false
		block.Errors = []string{"missing @type"}
	}
	return []snapshot.SchemaBlock{block}
}
