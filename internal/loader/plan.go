package loader

import (
	"path/filepath"
	"sort"
	"strings"

	"graphseed/internal/config"
	apperrors "graphseed/internal/errors"
	"graphseed/internal/graphdb"
)

// Item is one file scheduled for upload.
type Item struct {
	Path       string
	Repository string
	Context    string
	Format     graphdb.Format
	Gzip       bool
	Order      int

	ExpectedSHA256 string
	MinSize        int64

	// Filled by Digest.
	SHA256 string
	Size   int64
}

func (it Item) key() string {
	return it.Path + "\x00" + it.Repository + "\x00" + it.Context
}

// Plan expands the configured datasets into an ordered upload list: by
// order, then path, with duplicate (path, repository, context) entries
// dropped.
func Plan(cfg *config.Config, fs FileSystem) ([]Item, error) {
	var items []Item
	for _, ds := range cfg.Datasets {
		expanded, err := expandDataset(cfg, ds, fs)
		if err != nil {
			return nil, err
		}
		items = append(items, expanded...)
	}
	return finalize(items), nil
}

// PlanFiles builds a plan for explicit files. Files keep the given order.
func PlanFiles(paths []string, repository, graph, format string) ([]Item, error) {
	if repository == "" {
		return nil, apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeMissingRepository, "no repository given for explicit files", nil).
			WithModule("loader").
			WithOperation("PlanFiles")
	}

	items := make([]Item, 0, len(paths))
	for i, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		f, gz, err := resolveFormat(abs, format)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{
			Path:       abs,
			Repository: repository,
			Context:    graph,
			Format:     f,
			Gzip:       gz,
			Order:      i,
		})
	}
	return finalize(items), nil
}

// Matches reports whether path belongs to one of the configured datasets.
func Matches(cfg *config.Config, path string) bool {
	for _, ds := range cfg.Datasets {
		if ds.Path == path {
			return true
		}
		if ok, _ := filepath.Match(ds.Path, path); ok {
			return true
		}
	}
	return false
}

// WatchDirs lists the directories holding configured datasets. A wildcard
// directory contributes every existing match plus its longest literal
// prefix, so files appearing under it can be picked up by Matches.
func WatchDirs(cfg *config.Config, fs FileSystem) []string {
	seen := make(map[string]struct{})
	var dirs []string
	add := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	for _, ds := range cfg.Datasets {
		dir := filepath.Dir(ds.Path)
		if !hasMeta(dir) {
			add(dir)
			continue
		}
		matches, _ := fs.Glob(dir)
		for _, m := range matches {
			if info, err := fs.Stat(m); err == nil && info.IsDir() {
				add(m)
			}
		}
		add(literalPrefix(dir))
	}
	return dirs
}

func literalPrefix(dir string) string {
	for hasMeta(dir) {
		dir = filepath.Dir(dir)
	}
	return dir
}

func expandDataset(cfg *config.Config, ds config.DatasetConfig, fs FileSystem) ([]Item, error) {
	repo := cfg.RepositoryFor(ds)
	if repo == "" {
		return nil, apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeMissingRepository, "dataset has no repository", nil).
			WithModule("loader").
			WithOperation("Plan").
			WithField("path", ds.Path)
	}

	paths := []string{ds.Path}
	if hasMeta(ds.Path) {
		matches, err := fs.Glob(ds.Path)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeDatasetNoMatch, "invalid dataset pattern", err).
				WithModule("loader").
				WithOperation("Plan").
				WithField("path", ds.Path)
		}
		paths = paths[:0]
		for _, m := range matches {
			if info, err := fs.Stat(m); err == nil && info.IsDir() {
				continue
			}
			paths = append(paths, m)
		}
		if len(paths) == 0 {
			return nil, apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeDatasetNoMatch, "dataset pattern matched no files", nil).
				WithModule("loader").
				WithOperation("Plan").
				WithField("path", ds.Path)
		}
	}

	items := make([]Item, 0, len(paths))
	for _, p := range paths {
		f, gz, err := resolveFormat(p, ds.Format)
		if err != nil {
			return nil, err
		}
		items = append(items, Item{
			Path:           p,
			Repository:     repo,
			Context:        ds.Context,
			Format:         f,
			Gzip:           gz,
			Order:          ds.Order,
			ExpectedSHA256: ds.SHA256,
			MinSize:        ds.MinSize,
		})
	}
	return items, nil
}

func resolveFormat(path, override string) (graphdb.Format, bool, error) {
	f, gz, err := graphdb.FormatForPath(path)
	if override == "" {
		return f, gz, err
	}
	f, err = graphdb.LookupFormat(override)
	return f, gz, err
}

func finalize(items []Item) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].Path < items[j].Path
	})

	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, it := range items {
		k := it.key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[")
}
