package template

import (
	"fmt"
	"regexp"
	"strings"
)

// blockNode is the parsed template tree: plain text, a {{ }} print, an
// if/elif/else chain, or a for loop.
type blockNode interface{ isBlockNode() }

type textBlock struct{ text string }

func (textBlock) isBlockNode() {}

type printBlock struct{ expr *printExpr }

func (printBlock) isBlockNode() {}

type ifBranch struct {
	cond exprNode // nil for the trailing else
	body []blockNode
}

type ifBlock struct{ branches []ifBranch }

func (ifBlock) isBlockNode() {}

type forBlock struct {
	varName  string
	iterExpr exprNode
	body     []blockNode
}

func (forBlock) isBlockNode() {}

var tagPattern = regexp.MustCompile(`\{\{.*?\}\}|\{%.*?%\}`)

type rawTag struct {
	isPrint bool
	isTag   bool
	content string
	text    string
}

func tokenizeTemplate(src string) []rawTag {
	var out []rawTag
	last := 0
	for _, loc := range tagPattern.FindAllStringIndex(src, -1) {
		if loc[0] > last {
			out = append(out, rawTag{text: src[last:loc[0]]})
		}
		raw := src[loc[0]:loc[1]]
		if strings.HasPrefix(raw, "{{") {
			out = append(out, rawTag{isPrint: true, content: strings.TrimSpace(raw[2 : len(raw)-2])})
		} else {
			out = append(out, rawTag{isTag: true, content: strings.TrimSpace(raw[2 : len(raw)-2])})
		}
		last = loc[1]
	}
	if last < len(src) {
		out = append(out, rawTag{text: src[last:]})
	}
	return out
}

// parseTemplate builds the block tree from raw tags via a recursive
// descent over a flat token stream, matching if/elif/else/endif and
// for/endfor the way the tokenizer would structurally.
func parseTemplate(src string) ([]blockNode, error) {
	toks := tokenizeTemplate(src)
	nodes, rest, err := parseBlockList(toks, nil)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("unexpected trailing tag %q", rest[0].content)
	}
	return nodes, nil
}

// parseBlockList parses nodes until it hits a tag whose keyword is in
// stopAt (not consumed), or end of input.
func parseBlockList(toks []rawTag, stopAt map[string]bool) ([]blockNode, []rawTag, error) {
	var nodes []blockNode
	for len(toks) > 0 {
		t := toks[0]
		if t.isTag {
			kw := tagKeyword(t.content)
			if stopAt != nil && stopAt[kw] {
				return nodes, toks, nil
			}
			switch kw {
			case "if":
				block, rest, err := parseIf(toks)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, block)
				toks = rest
				continue
			case "for":
				block, rest, err := parseFor(toks)
				if err != nil {
					return nil, nil, err
				}
				nodes = append(nodes, block)
				toks = rest
				continue
			default:
				return nil, nil, fmt.Errorf("unexpected tag %q", t.content)
			}
		}
		if t.isPrint {
			pe, err := parsePrintExpr(t.content)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, printBlock{expr: pe})
			toks = toks[1:]
			continue
		}
		nodes = append(nodes, textBlock{text: t.text})
		toks = toks[1:]
	}
	return nodes, nil, nil
}

func tagKeyword(content string) string {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseIf(toks []rawTag) (blockNode, []rawTag, error) {
	var branches []ifBranch
	// first tag is "if <cond>"
	header := toks[0].content
	cond, err := parseConditionExpr(strings.TrimSpace(strings.TrimPrefix(header, "if")))
	if err != nil {
		return nil, nil, err
	}
	toks = toks[1:]
	body, rest, err := parseBlockList(toks, map[string]bool{"elif": true, "else": true, "endif": true})
	if err != nil {
		return nil, nil, err
	}
	branches = append(branches, ifBranch{cond: cond, body: body})
	toks = rest

	for len(toks) > 0 && toks[0].isTag {
		kw := tagKeyword(toks[0].content)
		if kw == "elif" {
			header := toks[0].content
			c, err := parseConditionExpr(strings.TrimSpace(strings.TrimPrefix(header, "elif")))
			if err != nil {
				return nil, nil, err
			}
			toks = toks[1:]
			b, rest, err := parseBlockList(toks, map[string]bool{"elif": true, "else": true, "endif": true})
			if err != nil {
				return nil, nil, err
			}
			branches = append(branches, ifBranch{cond: c, body: b})
			toks = rest
			continue
		}
		if kw == "else" {
			toks = toks[1:]
			b, rest, err := parseBlockList(toks, map[string]bool{"endif": true})
			if err != nil {
				return nil, nil, err
			}
			branches = append(branches, ifBranch{cond: nil, body: b})
			toks = rest
			continue
		}
		if kw == "endif" {
			toks = toks[1:]
			return ifBlock{branches: branches}, toks, nil
		}
		break
	}
	return nil, nil, fmt.Errorf("unterminated if block")
}

var forHeaderPattern = regexp.MustCompile(`^for\s+(\w+)\s+in\s+(.+)$`)

func parseFor(toks []rawTag) (blockNode, []rawTag, error) {
	header := toks[0].content
	m := forHeaderPattern.FindStringSubmatch(header)
	if m == nil {
		return nil, nil, fmt.Errorf("malformed for tag %q", header)
	}
	iter, err := parseConditionExpr(strings.TrimSpace(m[2]))
	if err != nil {
		return nil, nil, err
	}
	toks = toks[1:]
	body, rest, err := parseBlockList(toks, map[string]bool{"endfor": true})
	if err != nil {
		return nil, nil, err
	}
	if len(rest) == 0 || tagKeyword(rest[0].content) != "endfor" {
		return nil, nil, fmt.Errorf("unterminated for block")
	}
	rest = rest[1:]
	return forBlock{varName: m[1], iterExpr: iter, body: body}, rest, nil
}
