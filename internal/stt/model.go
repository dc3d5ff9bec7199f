package stt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ResolveModelPath returns modelPath if set, otherwise the first model directory
// (in name order) under modelsDir.
func ResolveModelPath(modelPath, modelsDir string) (string, error) {
	if modelPath != "" {
		info, err := os.Stat(modelPath)
		if err != nil {
			return "", fmt.Errorf("%w: model %s: %v", ErrModelLoad, modelPath, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%w: model %s is not a directory", ErrModelLoad, modelPath)
		}
		return modelPath, nil
	}

	models, err := ListModels(modelsDir)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", fmt.Errorf("%w: no models found in %s", ErrModelLoad, modelsDir)
	}
	return models[0], nil
}

// ListModels returns the model directories under modelsDir, sorted by name
func ListModels(modelsDir string) ([]string, error) {
	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: models directory %s: %v", ErrModelLoad, modelsDir, err)
	}

	var models []string
	for _, e := range entries {
		if e.IsDir() {
			models = append(models, filepath.Join(modelsDir, e.Name()))
		}
	}
	sort.Strings(models)
	return models, nil
}
