// Package scaffold writes a starter deck.yml for `deck init`.
package scaffold

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"github.com/dyluth/deck/internal/config"
	"github.com/dyluth/deck/internal/instance"
)

//go:embed templates/*
var templatesFS embed.FS

// Options are the values substituted into the templates.
type Options struct {
	Instance string
	Backend  string
}

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Template    string
	Permissions os.FileMode
}

// files lists what Initialize writes, relative to the target directory.
var files = []FileInfo{
	{Path: config.DefaultPath, Template: "templates/deck.yml.tmpl", Permissions: 0644},
	{Path: ".env.example", Template: "templates/env.tmpl", Permissions: 0644},
}

// Initialize writes the starter files into dir and returns their paths.
// Existing files are an error unless force is set, in which case they are
// overwritten.
func Initialize(dir string, opts Options, force bool) ([]string, error) {
	if opts.Instance == "" {
		opts.Instance = instance.DefaultName
	}
	if opts.Backend == "" {
		opts.Backend = config.BackendRedis
	}
	if err := instance.ValidateName(opts.Instance); err != nil {
		return nil, err
	}
	if opts.Backend != config.BackendRedis && opts.Backend != config.BackendSQLite {
		return nil, fmt.Errorf("invalid store backend: %s (must be 'redis' or 'sqlite')", opts.Backend)
	}

	if !force {
		if err := CheckExisting(dir); err != nil {
			return nil, err
		}
	}

	rendered := make(map[string][]byte, len(files))
	for _, f := range files {
		content, err := render(f.Template, opts)
		if err != nil {
			return nil, err
		}
		rendered[f.Path] = content
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	var created []string
	for _, f := range files {
		path := filepath.Join(dir, f.Path)
		if err := os.WriteFile(path, rendered[f.Path], f.Permissions); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}
		created = append(created, path)
	}

	// The scaffolded config must load with the current schema
	if _, err := config.Load(filepath.Join(dir, config.DefaultPath)); err != nil {
		return nil, fmt.Errorf("created %s is invalid: %w", config.DefaultPath, err)
	}

	return created, nil
}

func render(name string, opts Options) ([]byte, error) {
	raw, err := templatesFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", name, err)
	}

	tmpl, err := template.New(filepath.Base(name)).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
