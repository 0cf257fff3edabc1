package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pytest-lsp/pytest-lsp/internal/fixture"
	"github.com/pytest-lsp/pytest-lsp/internal/index"
	"github.com/pytest-lsp/pytest-lsp/internal/resolver"
)

var (
	dirStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	fileStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true)
	usedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	countStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	unusedStyle  = lipgloss.NewStyle().Faint(true)
	autouseStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
)

type fixtureEntry struct {
	def   fixture.Definition
	count int
}

// printFixturesTree renders the workspace's fixture-defining files as a
// tree, each file listing its fixtures with per-definition usage counts.
func printFixturesTree(w io.Writer, ix *index.Index, res *resolver.Resolver, root string, skipUnused, onlyUnused bool) {
	fileEntries := collectEntries(ix, res, root, skipUnused, onlyUnused)

	fmt.Fprintf(w, "Fixtures tree for: %s\n\n", root)
	if len(fileEntries) == 0 {
		fmt.Fprintln(w, "No fixtures found in this directory.")
		return
	}

	node := buildTree(fileEntries, root)
	printNode(w, node, fileEntries, "", true)
}

// collectEntries gathers every in-workspace definition with its usage
// count, applying the unused filters. Third-party definitions are not
// part of the tree.
func collectEntries(ix *index.Index, res *resolver.Resolver, root string, skipUnused, onlyUnused bool) map[string][]fixtureEntry {
	fileEntries := make(map[string][]fixtureEntry)
	for _, name := range ix.DefinitionNames() {
		for _, def := range ix.DefinitionsFor(name) {
			if def.IsThirdParty || !strings.HasPrefix(def.File, root+string(filepath.Separator)) {
				continue
			}
			count := len(res.References(def)) - 1
			if onlyUnused && (count > 0 || def.Autouse) {
				continue
			}
			if skipUnused && count == 0 && !def.Autouse {
				continue
			}
			fileEntries[def.File] = append(fileEntries[def.File], fixtureEntry{def: def, count: count})
		}
	}
	for _, entries := range fileEntries {
		sort.Slice(entries, func(i, j int) bool { return entries[i].def.Name < entries[j].def.Name })
	}
	return fileEntries
}

type treeNode struct {
	path     string
	children []*treeNode
}

// buildTree arranges the fixture-defining files into their directory
// hierarchy below root.
func buildTree(fileEntries map[string][]fixtureEntry, root string) *treeNode {
	nodes := map[string]*treeNode{root: {path: root}}

	var ensure func(path string) *treeNode
	ensure = func(path string) *treeNode {
		if node, ok := nodes[path]; ok {
			return node
		}
		node := &treeNode{path: path}
		nodes[path] = node
		parent := ensure(filepath.Dir(path))
		parent.children = append(parent.children, node)
		return node
	}

	files := make([]string, 0, len(fileEntries))
	for file := range fileEntries {
		files = append(files, file)
	}
	sort.Strings(files)
	for _, file := range files {
		ensure(file)
	}

	for _, node := range nodes {
		sort.Slice(node.children, func(i, j int) bool {
			return node.children[i].path < node.children[j].path
		})
	}
	return nodes[root]
}

func printNode(w io.Writer, node *treeNode, fileEntries map[string][]fixtureEntry, prefix string, isRoot bool) {
	if !isRoot {
		name := filepath.Base(node.path)
		if entries, ok := fileEntries[node.path]; ok {
			fmt.Fprintf(w, "%s%s (%d fixtures)\n", prefix, fileStyle.Render(name), len(entries))
			printFixtures(w, entries, childPrefix(prefix))
			return
		}
		fmt.Fprintf(w, "%s%s\n", prefix, dirStyle.Render(name+"/"))
	}

	base := ""
	if !isRoot {
		base = childPrefix(prefix)
	}
	for i, child := range node.children {
		connector := "├── "
		if i == len(node.children)-1 {
			connector = "└── "
		}
		printNode(w, child, fileEntries, base+connector, false)
	}
}

func printFixtures(w io.Writer, entries []fixtureEntry, prefix string) {
	for i, entry := range entries {
		connector := "├── "
		if i == len(entries)-1 {
			connector = "└── "
		}
		fmt.Fprintf(w, "%s%s%s (%s)\n", prefix, connector,
			fixtureLabel(entry), usageLabel(entry))
	}
}

func fixtureLabel(entry fixtureEntry) string {
	switch {
	case entry.def.Autouse && entry.count == 0:
		return autouseStyle.Render(entry.def.Name)
	case entry.count == 0:
		return unusedStyle.Render(entry.def.Name)
	default:
		return usedStyle.Render(entry.def.Name)
	}
}

func usageLabel(entry fixtureEntry) string {
	var parts []string
	switch entry.count {
	case 0:
		if !entry.def.Autouse {
			parts = append(parts, unusedStyle.Render("unused"))
		}
	case 1:
		parts = append(parts, countStyle.Render("used 1 time"))
	default:
		parts = append(parts, countStyle.Render(fmt.Sprintf("used %d times", entry.count)))
	}
	if entry.def.Autouse {
		parts = append(parts, autouseStyle.Render("autouse=True"))
	}
	return strings.Join(parts, ", ")
}

// childPrefix converts a connector prefix to the continuation prefix of
// its children: "├── " becomes "│   " and "└── " becomes "    ".
func childPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	base := prefix[:len(prefix)-len("├── ")]
	if strings.HasSuffix(prefix, "└── ") {
		return base + "    "
	}
	return base + "│   "
}
