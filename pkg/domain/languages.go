package domain

// Rendering-language hints accepted on creation. The renderer itself lives
// outside this service; the hint is validated here so a typo fails fast
// instead of producing an unstyled page later.
var supportedLanguages = map[string]struct{}{
	"javascript": {}, "typescript": {}, "jsx": {}, "tsx": {},
	"html": {}, "css": {}, "json": {}, "vue": {}, "svelte": {},
	"python": {}, "ruby": {}, "php": {}, "go": {}, "rust": {},
	"java": {}, "kotlin": {}, "scala": {}, "swift": {},
	"c": {}, "cpp": {}, "csharp": {}, "zig": {}, "nim": {},
	"bash": {}, "shell": {}, "zsh": {}, "fish": {}, "powershell": {},
	"dockerfile": {}, "yaml": {}, "toml": {}, "ini": {}, "nginx": {},
	"sql": {}, "graphql": {},
	"markdown": {}, "latex": {}, "xml": {},
	"lua": {}, "perl": {}, "r": {}, "elixir": {}, "erlang": {},
	"haskell": {}, "ocaml": {}, "clojure": {}, "lisp": {},
	"plaintext": {}, "text": {},
}

func ValidLanguage(lang string) bool {
	_, ok := supportedLanguages[lang]
	return ok
}
