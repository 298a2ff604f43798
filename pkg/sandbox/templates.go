package sandbox

import "strings"

// SeedFile is one file installed into a fresh workspace before generation
// begins, matching spec.md §3's `templateDetails.files[]` shape.
type SeedFile struct {
	Path    string
	Content string
}

// Template is a named, keyword-scored project scaffold. Scoring is adapted
// from the platform-whitelist keyword-match approach in the teacher's
// pkg/bootstrap/platforms.go, narrowed from a multi-language platform
// picker down to the handful of frontend scaffolds this generator actually
// produces.
type Template struct {
	Name        string
	DisplayName string
	Keywords    []string
	Files       []SeedFile
}

// registry is the fixed set of templates bootstrap can install. reactVite
// is deliberately the richest entry: it seeds the shadcn/ui-style
// "@/components/ui/*" surface (including the sonner toast wrapper) that
// SPEC_FULL.md's code-fixer scenarios exercise.
var registry = []Template{
	{
		Name:        "react-vite",
		DisplayName: "React + Vite + TypeScript",
		Keywords:    []string{"react", "frontend", "web", "ui", "spa", "dashboard", "app"},
		Files: []SeedFile{
			{Path: "package.json", Content: reactPackageJSON},
			{Path: "tsconfig.json", Content: reactTSConfig},
			{Path: "src/main.tsx", Content: reactMain},
			{Path: "src/App.tsx", Content: reactApp},
			{Path: "src/components/ui/sonner.tsx", Content: reactSonner},
		},
	},
	{
		Name:        "node-api",
		DisplayName: "Node.js API (Express)",
		Keywords:    []string{"api", "backend", "server", "express", "rest", "endpoint"},
		Files: []SeedFile{
			{Path: "package.json", Content: nodeAPIPackageJSON},
			{Path: "tsconfig.json", Content: reactTSConfig},
			{Path: "src/index.ts", Content: nodeAPIIndex},
		},
	},
}

// ResolveTemplate picks a template by explicit name if given and known,
// otherwise scores the query's keywords against every registered template
// and returns the best match, falling back to react-vite when nothing
// scores above zero (the generator's most common target).
func ResolveTemplate(selected, query string) Template {
	if selected != "" {
		for _, t := range registry {
			if t.Name == selected {
				return t
			}
		}
	}

	lower := strings.ToLower(query)
	best := registry[0]
	bestScore := -1.0
	for _, t := range registry {
		score := scoreKeywords(t, lower)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	return best
}

func scoreKeywords(t Template, lowerQuery string) float64 {
	matched := 0
	for _, kw := range t.Keywords {
		if strings.Contains(lowerQuery, kw) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return float64(matched) / float64(len(t.Keywords))
}

const reactPackageJSON = `{
  "name": "generated-app",
  "private": true,
  "type": "module",
  "scripts": {
    "dev": "vite",
    "build": "tsc -b && vite build",
    "lint": "eslint .",
    "typecheck": "tsc --noEmit"
  },
  "dependencies": {
    "react": "^18.3.0",
    "react-dom": "^18.3.0",
    "sonner": "^1.5.0"
  },
  "devDependencies": {
    "typescript": "^5.5.0",
    "vite": "^5.4.0",
    "eslint": "^9.0.0"
  }
}
`

const reactTSConfig = `{
  "compilerOptions": {
    "target": "ES2020",
    "jsx": "react-jsx",
    "module": "ESNext",
    "moduleResolution": "Bundler",
    "strict": true,
    "baseUrl": ".",
    "paths": { "@/*": ["src/*"] }
  },
  "include": ["src"]
}
`

const reactMain = `import { createRoot } from 'react-dom/client';
import App from './App';

createRoot(document.getElementById('root')!).render(<App />);
`

const reactApp = `function App() {
  return <div id="app" />;
}

export default App;
`

const reactSonner = `export { Toaster } from 'sonner';
`

const nodeAPIPackageJSON = `{
  "name": "generated-api",
  "private": true,
  "type": "module",
  "scripts": {
    "dev": "tsx src/index.ts",
    "build": "tsc -b",
    "lint": "eslint .",
    "typecheck": "tsc --noEmit"
  },
  "dependencies": {
    "express": "^4.19.0"
  },
  "devDependencies": {
    "typescript": "^5.5.0",
    "tsx": "^4.16.0",
    "eslint": "^9.0.0"
  }
}
`

const nodeAPIIndex = `import express from 'express';

const app = express();
app.get('/healthz', (_req, res) => res.json({ ok: true }));

app.listen(process.env.PORT ?? 3000);
`
