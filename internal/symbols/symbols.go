package symbols

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/swift"

	"github.com/sokinpui/pfx.go/model"
)

// Locator finds class and func declarations. Swift and Go sources are parsed
// with tree-sitter; anything else goes through a brace-matching scanner.
type Locator struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// New creates a Locator.
func New() *Locator {
	return &Locator{parser: sitter.NewParser()}
}

// Close releases the tree-sitter parser.
func (l *Locator) Close() {
	l.parser.Close()
}

// Locate returns the declarations in content, in source order.
func (l *Locator) Locate(path string, content []byte) ([]model.Symbol, error) {
	switch filepath.Ext(path) {
	case ".swift":
		return l.parse(path, content, swift.GetLanguage(), swiftKinds)
	case ".go":
		return l.parse(path, content, golang.GetLanguage(), goKinds)
	default:
		return Scan(path, string(content)), nil
	}
}

// swiftKinds maps Swift node types to symbol kinds. class_declaration also
// covers struct, enum, actor and extension declarations.
var swiftKinds = map[string]model.SymbolKind{
	"class_declaration":    model.SymbolClass,
	"protocol_declaration": model.SymbolClass,
	"function_declaration": model.SymbolFunc,
	"init_declaration":     model.SymbolFunc,
}

var goKinds = map[string]model.SymbolKind{
	"type_spec":            model.SymbolClass,
	"function_declaration": model.SymbolFunc,
	"method_declaration":   model.SymbolFunc,
}

func (l *Locator) parse(path string, content []byte, lang *sitter.Language, kinds map[string]model.SymbolKind) ([]model.Symbol, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.parser.SetLanguage(lang)
	tree, err := l.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var syms []model.Symbol
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if kind, ok := kinds[n.Type()]; ok {
			if name := nodeName(n, content); name != "" {
				syms = append(syms, model.Symbol{
					Name: name,
					Kind: kind,
					Path: path,
					Range: model.LineRange{
						Start: int(n.StartPoint().Row) + 1,
						End:   int(n.EndPoint().Row) + 1,
					},
				})
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(tree.RootNode())
	return syms, nil
}

func nodeName(n *sitter.Node, content []byte) string {
	if n.Type() == "init_declaration" {
		return "init"
	}
	name := n.ChildByFieldName("name")
	if name == nil {
		return ""
	}
	return strings.TrimSpace(name.Content(content))
}

var (
	classDeclRegex = regexp.MustCompile(`^\s*(?:[@\w]+(?:\([^)]*\))?\s+)*(?:class|struct|enum|protocol|extension|actor|interface|object)\s+([A-Za-z_]\w*)`)
	funcDeclRegex  = regexp.MustCompile(`^\s*(?:[@\w]+(?:\([^)]*\))?\s+)*(?:func|fun|def|function)\s+([A-Za-z_]\w*)`)
)

// Scan finds declarations line by line. A declaration extends to the line
// where its first opening brace is closed, or is a single line if it has none.
func Scan(path, content string) []model.Symbol {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	var syms []model.Symbol
	for i, line := range lines {
		var kind model.SymbolKind
		var m []string
		if m = classDeclRegex.FindStringSubmatch(line); m != nil {
			kind = model.SymbolClass
		} else if m = funcDeclRegex.FindStringSubmatch(line); m != nil {
			kind = model.SymbolFunc
		} else {
			continue
		}
		syms = append(syms, model.Symbol{
			Name:  m[1],
			Kind:  kind,
			Path:  path,
			Range: model.LineRange{Start: i + 1, End: blockEnd(lines, i) + 1},
		})
	}
	return syms
}

func blockEnd(lines []string, start int) int {
	depth, opened := 0, false
	for i := start; i < len(lines); i++ {
		for _, r := range lines[i] {
			switch r {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
			}
		}
		if opened && depth <= 0 {
			return i
		}
		if !opened && i > start {
			// no body on the declaration line or the next one
			return start
		}
	}
	return len(lines) - 1
}
