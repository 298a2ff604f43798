package fixer

import (
	"path"
	"regexp"
	"strings"
)

// fixModuleNotFound handles TS2307 ("Cannot find module '...'"): the
// generated code imported a path that doesn't resolve. The only
// deterministic repairs applied are adding the missing "@/" alias prefix to
// a bare "components/", "lib/" or "hooks/" path, or dropping a trailing
// "/", and only when fetcher finds the rewritten path; anything else is
// left unfixable so phase retry/regeneration can take over.
func fixModuleNotFound(src string, issue Issue, fetcher FileFetcher) (string, bool) {
	spec := moduleFromMessage(issue.Message)
	if spec == "" {
		return "", false
	}

	stmts := parseImports(src)
	for _, stmt := range stmts {
		if stmt.ModuleSpec != spec {
			continue
		}

		candidate := spec
		switch {
		case strings.HasPrefix(spec, "components/") || strings.HasPrefix(spec, "lib/") || strings.HasPrefix(spec, "hooks/"):
			candidate = "@/" + spec
		case strings.HasSuffix(spec, "/"):
			candidate = strings.TrimSuffix(spec, "/")
		default:
			return "", false
		}

		if _, ok := fetcher(candidate); !ok {
			return "", false
		}

		rewritten := stmt
		rewritten.ModuleSpec = candidate
		return src[:stmt.Start] + rewritten.render() + src[stmt.End:], true
	}
	return "", false
}

// fixNoDefaultExport handles TS2613 ("Module ... has no default export"):
// rewrite a default import to the named import the target module actually
// offers, keeping the local binding name the caller already uses.
func fixNoDefaultExport(src string, issue Issue, fetcher FileFetcher) (string, bool) {
	stmts := parseImports(src)
	for _, stmt := range stmts {
		if stmt.DefaultName == "" {
			continue
		}
		target, ok := fetcher(stmt.ModuleSpec)
		if !ok {
			continue
		}
		hasDefault, named := exportedNames(target)
		if hasDefault || len(named) == 0 {
			continue
		}

		exportName := named[0]
		if match, found := closestName(stmt.DefaultName, named); found {
			exportName = match
		}

		rewritten := stmt
		local := rewritten.DefaultName
		rewritten.DefaultName = ""
		rewritten.Named = append([]importSpecifier{{Imported: exportName, Local: local}}, rewritten.Named...)
		return src[:stmt.Start] + rewritten.render() + src[stmt.End:], true
	}
	return "", false
}

// globalSkipList holds identifiers TS2304 must never try to stub: ambient
// globals the compiler fails to resolve because of a missing lib/dom
// config, not because the generated code forgot to declare them.
var globalSkipList = map[string]bool{
	"React": true, "console": true, "window": true, "document": true,
	"fetch": true, "Promise": true, "Array": true, "Object": true,
	"Math": true, "JSON": true, "Error": true, "Map": true, "Set": true,
	"Date": true, "RegExp": true, "Symbol": true, "Proxy": true,
	"Reflect": true, "globalThis": true, "process": true, "module": true,
	"require": true, "exports": true, "navigator": true,
	"localStorage": true, "sessionStorage": true, "alert": true,
	"confirm": true, "prompt": true, "setTimeout": true,
	"clearTimeout": true, "setInterval": true, "clearInterval": true,
	"Number": true, "String": true, "Boolean": true, "Infinity": true,
	"NaN": true, "undefined": true, "null": true, "this": true,
	"super": true, "arguments": true, "WeakMap": true, "WeakSet": true,
}

// usageContext classifies how an undeclared identifier is used in src, read
// from the surrounding syntax (no TS/JS parser exists anywhere in the
// retrieval pack to build a real AST from), so the injected declaration's
// shape matches how the generated code actually uses the name.
type usageContext int

const (
	usageUnknown usageContext = iota
	usageJSX
	usageNew
	usageTypePosition
	usageEnum
	usageCall
	usageMember
	usageAssignment
)

// classifyUsage inspects every occurrence of name in src and returns the
// most specific usage kind found, preferring syntax that can only mean one
// thing (JSX, new, a type position) over the ones that overlap with plain
// variable reference.
func classifyUsage(src, name string) usageContext {
	b := regexp.QuoteMeta(name)
	switch {
	case regexp.MustCompile(`<` + b + `[\s/>]`).MatchString(src):
		return usageJSX
	case regexp.MustCompile(`\bnew\s+` + b + `\b`).MatchString(src):
		return usageNew
	case regexp.MustCompile(`:\s*` + b + `\b`).MatchString(src),
		regexp.MustCompile(`\bas\s+` + b + `\b`).MatchString(src):
		return usageTypePosition
	case regexp.MustCompile(b + `\.[A-Z][A-Z0-9_]*\b`).MatchString(src):
		return usageEnum
	case regexp.MustCompile(b + `\s*\(`).MatchString(src):
		return usageCall
	case regexp.MustCompile(b + `\.\w+`).MatchString(src):
		return usageMember
	case regexp.MustCompile(b + `\s*=[^=]`).MatchString(src):
		return usageAssignment
	default:
		return usageUnknown
	}
}

// stubDeclarationFor renders a minimal declaration shaped for kind: a
// callable for JSX/call sites, a class for `new`, a type alias for type
// positions, an enum stub for enum-like member access, and a loosely typed
// variable for everything else (member access, assignment, bare reference).
func stubDeclarationFor(kind usageContext, name string) string {
	switch kind {
	case usageJSX:
		return "\nfunction " + name + "(props) {\n  return null;\n}\n"
	case usageCall:
		return "\nfunction " + name + "(...args) {\n  return undefined;\n}\n"
	case usageNew:
		return "\nclass " + name + " {}\n"
	case usageTypePosition:
		return "\ntype " + name + " = any;\n"
	case usageEnum:
		return "\nenum " + name + " {}\n"
	default:
		return "\nvar " + name + ": any;\n"
	}
}

// fixNameNotFound handles TS2304 ("Cannot find name 'X'"): when X looks like
// a component and a module with a matching default export can be resolved
// at the conventional "@/components/X" path, inject an import for it.
// Otherwise, inject a minimal stub declaration shaped to how X is actually
// used, immediately after the last import, matching spec.md §8's
// "declaration injection" scenario.
func fixNameNotFound(src string, issue Issue, fetcher FileFetcher) (string, bool) {
	name := nameFromMessage(issue.Message)
	if name == "" || globalSkipList[name] {
		return "", false
	}

	if startsUpper(name) {
		conventional := path.Join("@/components", name)
		if target, ok := fetcher(conventional); ok {
			hasDefault, _ := exportedNames(target)
			if hasDefault {
				return injectImport(src, name, conventional), true
			}
		}
	}

	kind := classifyUsage(src, name)
	return insertAfterLastImport(src, stubDeclarationFor(kind, name)), true
}

// fixNoExportedMember handles TS2305/TS2614 ("Module ... has no exported
// member 'X'" / "has no exported member named 'X'"): drop the offending
// named specifier if the module truly lacks it and nothing close exists,
// or rewrite it to the closest matching export.
func fixNoExportedMember(src string, issue Issue, fetcher FileFetcher) (string, bool) {
	name := nameFromMessage(issue.Message)
	if name == "" {
		return "", false
	}

	stmts := parseImports(src)
	for _, stmt := range stmts {
		idx := -1
		for i, spec := range stmt.Named {
			if spec.Imported == name {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}
		target, ok := fetcher(stmt.ModuleSpec)
		if !ok {
			continue
		}
		_, named := exportedNames(target)

		rewritten := stmt
		if match, found := closestName(name, named); found && match != name {
			rewritten.Named[idx].Imported = match
		} else {
			rewritten.Named = append(stmt.Named[:idx:idx], stmt.Named[idx+1:]...)
		}
		if len(rewritten.Named) == 0 && rewritten.DefaultName == "" && rewritten.NamespaceAs == "" {
			return src[:stmt.Start] + src[stmt.End:], true
		}
		return src[:stmt.Start] + rewritten.render() + src[stmt.End:], true
	}
	return "", false
}

// fixDidYouMeanExport handles TS2724 ("... has no exported member named 'X'.
// Did you mean 'Y'?"): the compiler already names the intended export, so
// the rewrite is a direct substitution rather than a fuzzy match. This is
// the rule exercised by spec.md §8's sonner toast→Toaster scenario.
func fixDidYouMeanExport(src string, issue Issue, fetcher FileFetcher) (string, bool) {
	wrong, suggestion := namesFromDidYouMean(issue.Message)
	if wrong == "" || suggestion == "" {
		return "", false
	}

	stmts := parseImports(src)
	for _, stmt := range stmts {
		for i, spec := range stmt.Named {
			if spec.Imported != wrong {
				continue
			}
			rewritten := stmt
			rewritten.Named = append([]importSpecifier{}, stmt.Named...)
			local := rewritten.Named[i].Local
			if local == rewritten.Named[i].Imported {
				local = suggestion
			}
			rewritten.Named[i] = importSpecifier{Imported: suggestion, Local: local}

			body := src[:stmt.Start] + rewritten.render() + src[stmt.End:]
			body = replaceIdentifier(body, wrong, suggestion, stmt.End)
			return body, true
		}
	}
	return "", false
}

func injectImport(src, name, modulePath string) string {
	line := "import " + name + " from '" + modulePath + "';\n"
	return insertAfterLastImport(src, line)
}

func insertAfterLastImport(src, line string) string {
	stmts := parseImports(src)
	if len(stmts) == 0 {
		return line + src
	}
	last := stmts[len(stmts)-1]
	return src[:last.End] + "\n" + strings.TrimSuffix(line, "\n") + src[last.End:]
}

func replaceIdentifier(src, from, to string, afterOffset int) string {
	if afterOffset > len(src) {
		afterOffset = len(src)
	}
	head := src[:afterOffset]
	tail := src[afterOffset:]
	tail = identifierBoundary(from).ReplaceAllString(tail, to)
	return head + tail
}

func identifierBoundary(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`)
}

func startsUpper(s string) bool {
	if s == "" {
		return false
	}
	return s[0] >= 'A' && s[0] <= 'Z'
}
