package fixer

import (
	"regexp"
	"strings"
)

// importStatementRe matches a single ES-module import clause, spanning
// newlines inside the clause (multi-line named-import lists) but stopping
// at the closing quote of the module specifier. This is the minimal
// position-tracked model the fixer operates on: no full TS/JS grammar, just
// enough structure to locate and rewrite import specifiers deterministically.
var importStatementRe = regexp.MustCompile(`(?s)import\s+(.+?)\s+from\s+['"]([^'"]+)['"];?`)

// importSpecifier is one named binding in an import clause: `Foo` or
// `Foo as Bar`.
type importSpecifier struct {
	Imported string // name as exported by the module
	Local    string // name bound in the importing file
}

// importStatement is one parsed `import ... from '...'` clause with its
// source position, used both to read structure and to rewrite in place.
type importStatement struct {
	Start       int // byte offset of the start of "import"
	End         int // byte offset just past the trailing ";" (or clause end)
	RawText     string
	ModuleSpec  string
	DefaultName string // "" if no default import
	NamespaceAs string // "" if no `* as NS` import
	Named       []importSpecifier
}

// parseImports scans src for import clauses in source order.
func parseImports(src string) []importStatement {
	matches := importStatementRe.FindAllStringSubmatchIndex(src, -1)
	out := make([]importStatement, 0, len(matches))
	for _, m := range matches {
		clause := src[m[2]:m[3]]
		moduleSpec := src[m[4]:m[5]]
		stmt := importStatement{
			Start:      m[0],
			End:        m[1],
			RawText:    src[m[0]:m[1]],
			ModuleSpec: moduleSpec,
		}
		parseClause(clause, &stmt)
		out = append(out, stmt)
	}
	return out
}

// parseClause fills in DefaultName, NamespaceAs, and Named from the part of
// an import statement between "import" and "from".
func parseClause(clause string, stmt *importStatement) {
	clause = strings.TrimSpace(clause)

	if strings.HasPrefix(clause, "*") {
		rest := strings.TrimSpace(strings.TrimPrefix(clause, "*"))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "as"))
		stmt.NamespaceAs = rest
		return
	}

	braceStart := strings.Index(clause, "{")
	if braceStart == -1 {
		stmt.DefaultName = strings.TrimSpace(clause)
		return
	}

	if braceStart > 0 {
		stmt.DefaultName = strings.TrimSpace(strings.TrimSuffix(clause[:braceStart], ","))
	}

	braceEnd := strings.LastIndex(clause, "}")
	if braceEnd == -1 || braceEnd < braceStart {
		return
	}
	inner := clause[braceStart+1 : braceEnd]
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, " as "); idx != -1 {
			stmt.Named = append(stmt.Named, importSpecifier{
				Imported: strings.TrimSpace(part[:idx]),
				Local:    strings.TrimSpace(part[idx+len(" as "):]),
			})
			continue
		}
		stmt.Named = append(stmt.Named, importSpecifier{Imported: part, Local: part})
	}
}

// render re-serializes stmt back to an import clause, preserving local
// aliases. Used by rewrite rules after mutating Named/DefaultName/ModuleSpec.
func (s importStatement) render() string {
	var parts []string
	if s.DefaultName != "" {
		parts = append(parts, s.DefaultName)
	}
	if s.NamespaceAs != "" {
		parts = append(parts, "* as "+s.NamespaceAs)
	}
	if len(s.Named) > 0 {
		names := make([]string, 0, len(s.Named))
		for _, n := range s.Named {
			if n.Imported == n.Local {
				names = append(names, n.Imported)
			} else {
				names = append(names, n.Imported+" as "+n.Local)
			}
		}
		parts = append(parts, "{ "+strings.Join(names, ", ")+" }")
	}
	return "import " + strings.Join(parts, ", ") + " from '" + s.ModuleSpec + "';"
}

// exportedNames extracts the top-level export names a module's source
// declares: `export default`, `export const/function/class/interface NAME`.
// This is a regex-level approximation of the module's public surface,
// sufficient for the rewrite decisions the fixer needs to make.
func exportedNames(src string) (hasDefault bool, named []string) {
	if regexp.MustCompile(`export\s+default\b`).MatchString(src) {
		hasDefault = true
	}
	re := regexp.MustCompile(`export\s+(?:const|function|class|interface|type|let|var)\s+([A-Za-z0-9_]+)`)
	for _, m := range re.FindAllStringSubmatch(src, -1) {
		named = append(named, m[1])
	}
	reBrace := regexp.MustCompile(`export\s*\{([^}]*)\}`)
	for _, m := range reBrace.FindAllStringSubmatch(src, -1) {
		for _, part := range strings.Split(m[1], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if idx := strings.Index(part, " as "); idx != -1 {
				part = strings.TrimSpace(part[idx+len(" as "):])
			}
			named = append(named, part)
		}
	}
	return hasDefault, named
}

// closestName returns the entry of candidates that shares the longest
// case-insensitive prefix with target, used by the TS2305 fixer to decide
// whether a similarly-named export exists worth rewriting to.
func closestName(target string, candidates []string) (string, bool) {
	targetLower := strings.ToLower(target)
	best := ""
	bestScore := 0
	for _, c := range candidates {
		score := commonPrefixLen(targetLower, strings.ToLower(c))
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore >= 3 || (bestScore > 0 && bestScore == len(targetLower)) {
		return best, true
	}
	return "", false
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
