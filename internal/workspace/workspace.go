// Package workspace decides where memory files live for a given invocation.
//
// The resolver is stateless: every input (environment signals, working
// directory, explicit override) arrives through Options, and the process
// environment is never read or modified here.
package workspace

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
)

// DefaultDirName is the storage directory created inside the chosen root.
const DefaultDirName = ".Mem0-Files"

// MaxWalkDepth bounds the upward project-root search.
const MaxWalkDepth = 8

// Source names the signal that produced a Resolution.
type Source string

const (
	SourceExplicit        Source = "explicit"
	SourceStorageDirAbs   Source = "LOCAL_STORAGE_DIR"
	SourceStorageDir      Source = "LOCAL_STORAGE_DIR (relative)"
	SourceProjectDir      Source = "PROJECT_DIR"
	SourceWorkspaceFolder Source = "VSCODE_WORKSPACE_FOLDER"
	SourceVSCodeCWD       Source = "VSCODE_CWD"
	SourcePWD             Source = "PWD"
	SourceInitCWD         Source = "INIT_CWD"
	SourceDetected        Source = "detected project root"
	SourceFallback        Source = "working directory"
)

// Env is the snapshot of environment signals the resolver consults.
type Env struct {
	StorageDir      string // LOCAL_STORAGE_DIR
	ProjectDir      string // PROJECT_DIR
	WorkspaceFolder string // VSCODE_WORKSPACE_FOLDER
	VSCodeCWD       string // VSCODE_CWD
	PWD             string // PWD
	InitCWD         string // INIT_CWD
	Home            string // HOME
}

// EnvFromOS captures the signals from the process environment. Only the
// command layer calls this; everything below it receives the struct.
func EnvFromOS() Env {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return Env{
		StorageDir:      os.Getenv("LOCAL_STORAGE_DIR"),
		ProjectDir:      os.Getenv("PROJECT_DIR"),
		WorkspaceFolder: os.Getenv("VSCODE_WORKSPACE_FOLDER"),
		VSCodeCWD:       os.Getenv("VSCODE_CWD"),
		PWD:             os.Getenv("PWD"),
		InitCWD:         os.Getenv("INIT_CWD"),
		Home:            home,
	}
}

// Options holds the inputs for Resolve.
type Options struct {
	// StorageDir is an explicit caller-supplied root; DefaultDirName is
	// appended to it.
	StorageDir string
	// Cwd is the process working directory. Empty means os.Getwd.
	Cwd    string
	Env    Env
	Logger *log.Logger
}

// Resolution is the chosen base directory and the signal that chose it.
type Resolution struct {
	Dir    string `json:"dir"`
	Source Source `json:"source"`
}

// Resolve picks the base storage directory. It always returns a path.
func Resolve(opts Options) Resolution {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	cwd := opts.Cwd
	if cwd == "" {
		if wd, err := os.Getwd(); err == nil {
			cwd = wd
		} else {
			cwd = "."
		}
	}
	env := opts.Env

	pick := func(dir string, src Source) Resolution {
		r := Resolution{Dir: dir, Source: src}
		logger.Debug("resolved storage directory", "dir", r.Dir, "source", r.Source)
		return r
	}

	if opts.StorageDir != "" {
		return pick(abs(filepath.Join(opts.StorageDir, DefaultDirName)), SourceExplicit)
	}
	if env.StorageDir != "" && filepath.IsAbs(env.StorageDir) {
		return pick(filepath.Clean(env.StorageDir), SourceStorageDirAbs)
	}
	if env.StorageDir != "" && env.StorageDir != DefaultDirName {
		return pick(env.StorageDir, SourceStorageDir)
	}
	if env.ProjectDir != "" {
		return pick(abs(filepath.Join(env.ProjectDir, DefaultDirName)), SourceProjectDir)
	}
	if env.WorkspaceFolder != "" {
		return pick(abs(filepath.Join(env.WorkspaceFolder, DefaultDirName)), SourceWorkspaceFolder)
	}
	if env.VSCodeCWD != "" {
		return pick(abs(filepath.Join(env.VSCodeCWD, DefaultDirName)), SourceVSCodeCWD)
	}
	if env.PWD != "" && !samePath(env.PWD, cwd) {
		return pick(abs(filepath.Join(env.PWD, DefaultDirName)), SourcePWD)
	}
	if env.InitCWD != "" && !samePath(env.InitCWD, cwd) {
		return pick(abs(filepath.Join(env.InitCWD, DefaultDirName)), SourceInitCWD)
	}
	if root, ok := DetectProjectRoot(cwd, env.Home, logger); ok {
		return pick(filepath.Join(root, DefaultDirName), SourceDetected)
	}

	r := Resolution{Dir: abs(filepath.Join(cwd, DefaultDirName)), Source: SourceFallback}
	logger.Warn("no workspace signal found, storing memories under the working directory", "dir", r.Dir)
	return r
}

// Markers found in a directory.
type Markers struct {
	Editor   bool // .vscode or .roo
	VCS      bool // .git, .hg, .svn
	Manifest bool // package.json, go.mod, ...
}

// ProjectRoot reports whether the markers identify a project root.
func (m Markers) ProjectRoot() bool {
	return m.VCS || m.Manifest
}

func (m Markers) any() bool {
	return m.Editor || m.VCS || m.Manifest
}

var (
	editorMarkers   = []string{".vscode", ".roo"}
	vcsMarkers      = []string{".git", ".hg", ".svn"}
	manifestMarkers = []string{
		"package.json", "go.mod", "Cargo.toml", "pyproject.toml",
		"pom.xml", "build.gradle", "composer.json", "Gemfile",
	}
)

// Probe inspects dir for project markers.
func Probe(dir string) (Markers, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Markers{}, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	has := func(list []string) bool {
		for _, n := range list {
			if names[n] {
				return true
			}
		}
		return false
	}
	return Markers{
		Editor:   has(editorMarkers),
		VCS:      has(vcsMarkers),
		Manifest: has(manifestMarkers),
	}, nil
}

type candidate struct {
	path  string
	level int
	Markers
}

// better reports whether a outranks b.
func better(a, b candidate) bool {
	if a.ProjectRoot() != b.ProjectRoot() {
		return a.ProjectRoot()
	}
	if a.ProjectRoot() && a.Editor != b.Editor {
		return a.Editor
	}
	if a.Editor && b.Editor && a.level != b.level {
		return a.level < b.level
	}
	if a.VCS != b.VCS {
		return a.VCS
	}
	return a.level < b.level
}

// DetectProjectRoot walks upward from start, at most MaxWalkDepth
// directories, and returns the best-ranked directory carrying project
// markers. The walk stops before home and never reaches past the
// filesystem root.
func DetectProjectRoot(start, home string, logger *log.Logger) (string, bool) {
	if logger == nil {
		logger = log.Default()
	}
	dir := abs(start)
	if home != "" {
		home = abs(home)
	}

	var candidates []candidate
	for level := 0; level < MaxWalkDepth; level++ {
		if home != "" && dir == home {
			break
		}
		m, err := Probe(dir)
		if err != nil {
			logger.Debug("skipping unreadable directory", "dir", dir, "err", err)
		} else if m.any() {
			candidates = append(candidates, candidate{path: dir, level: level, Markers: m})
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if len(candidates) == 0 {
		return "", false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
	best := candidates[0]
	logger.Info("found workspace", "dir", best.path, "project_root", best.ProjectRoot(), "editor", best.Editor, "vcs", best.VCS)
	return best.path, true
}

func abs(p string) string {
	if a, err := filepath.Abs(p); err == nil {
		return a
	}
	return filepath.Clean(p)
}

func samePath(a, b string) bool {
	return abs(a) == abs(b)
}
