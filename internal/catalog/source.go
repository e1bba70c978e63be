package catalog

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"go.uber.org/zap"
)

// testAnnotations are the JUnit 4 and 5 annotations that mark a runnable
// test method, in short and fully qualified form.
var testAnnotations = map[string]bool{
	"Test":                                       true,
	"ParameterizedTest":                          true,
	"org.junit.Test":                             true,
	"org.junit.jupiter.api.Test":                 true,
	"org.junit.jupiter.params.ParameterizedTest": true,
}

// SourceProvider finds JUnit test methods in the Java files under Root.
// Every top-level class declaring an annotated method contributes, whatever
// its name; nested classes are skipped.
type SourceProvider struct {
	Root   string
	Logger *zap.Logger
}

// Tests implements Provider. Results are sorted.
func (p SourceProvider) Tests(ctx context.Context) ([]string, error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	info, err := os.Stat(p.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read test sources: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test sources %s is not a directory", p.Root)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	var ids []string
	err = filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".java") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		found, err := scanJava(ctx, parser, src)
		if err != nil {
			log.Warn("skipping unparsable source", zap.String("path", path), zap.Error(err))
			return nil
		}
		ids = append(ids, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(ids)
	log.Debug("discovered tests", zap.String("root", p.Root), zap.Int("count", len(ids)))
	return ids, nil
}

// scanJava returns pkg.Class#method for every annotated test method of the
// top-level classes in src.
func scanJava(ctx context.Context, parser *sitter.Parser, src []byte) ([]string, error) {
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	var pkg string
	var ids []string
	for i := 0; i < int(root.NamedChildCount()); i++ {
		node := root.NamedChild(i)
		switch node.Type() {
		case "package_declaration":
			pkg = packageName(node, src)
		case "class_declaration":
			name := node.ChildByFieldName("name")
			body := node.ChildByFieldName("body")
			if name == nil || body == nil {
				continue
			}
			class := name.Content(src)
			if pkg != "" {
				class = pkg + "." + class
			}
			for _, m := range testMethods(body, src) {
				ids = append(ids, class+"#"+m)
			}
		}
	}
	return ids, nil
}

func packageName(node *sitter.Node, src []byte) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		if c.Type() == "scoped_identifier" || c.Type() == "identifier" {
			return c.Content(src)
		}
	}
	return ""
}

func testMethods(body *sitter.Node, src []byte) []string {
	var methods []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		if m.Type() != "method_declaration" || !hasTestAnnotation(m, src) {
			continue
		}
		if name := m.ChildByFieldName("name"); name != nil {
			methods = append(methods, name.Content(src))
		}
	}
	return methods
}

func hasTestAnnotation(method *sitter.Node, src []byte) bool {
	for i := 0; i < int(method.NamedChildCount()); i++ {
		mods := method.NamedChild(i)
		if mods.Type() != "modifiers" {
			continue
		}
		for j := 0; j < int(mods.NamedChildCount()); j++ {
			a := mods.NamedChild(j)
			if a.Type() != "marker_annotation" && a.Type() != "annotation" {
				continue
			}
			if name := a.ChildByFieldName("name"); name != nil && testAnnotations[name.Content(src)] {
				return true
			}
		}
	}
	return false
}
