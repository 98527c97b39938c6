// Package internal lists the published turn-detector model revisions.
package internal

import "path/filepath"

// ModelInfo describes one turn-detector model revision on the Hugging Face hub.
type ModelInfo struct {
	Name     string // "english", "multilingual"
	Repo     string
	Revision string
	Files    []string
	// Hashes maps files to their SHA-256; files without an entry are checked for presence only.
	Hashes map[string]string
}

const (
	ModelFile     = "onnx/model_q8.onnx"
	TokenizerFile = "tokenizer.json"
	LanguagesFile = "languages.json"
)

var (
	EnglishModel = ModelInfo{
		Name:     "english",
		Repo:     "livekit/turn-detector",
		Revision: "v1.2.2-en",
		Files:    []string{ModelFile, TokenizerFile, LanguagesFile},
		Hashes: map[string]string{
			ModelFile:     "fdd695a99bda01155fb0b5ce71d34cb9fd3902c62496db7a6c2c7bdeac310ac7",
			TokenizerFile: "c8219a662de786c94771323c3500377970f5eaa3afbeaef9390c9a51db9f7884",
		},
	}

	MultilingualModel = ModelInfo{
		Name:     "multilingual",
		Repo:     "livekit/turn-detector",
		Revision: "v0.3.0-intl",
		Files:    []string{ModelFile, TokenizerFile, LanguagesFile},
	}

	AllModels = []ModelInfo{EnglishModel, MultilingualModel}
)

// Lookup finds a model by name.
func Lookup(name string) (ModelInfo, bool) {
	for _, m := range AllModels {
		if m.Name == name {
			return m, true
		}
	}
	return ModelInfo{}, false
}

// Dir returns the directory where a revision is stored.
func Dir(basePath string, m ModelInfo) string {
	return filepath.Join(basePath, "turn-detector", m.Revision)
}

// FilePath returns the path of one file of a revision.
func FilePath(basePath string, m ModelInfo, file string) string {
	return filepath.Join(Dir(basePath, m), filepath.FromSlash(file))
}
