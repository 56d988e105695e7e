package state

import "path/filepath"

type Paths struct {
	DB      string
	Surface string // persistent property store
	State   string
	Tmp     string
	Tel     string
	Logs    string
	Crash   string // crash dumps and failed write journal
}

func PathsFor(dataDir string) Paths {
	statePath := filepath.Join(dataDir, "state")
	return Paths{
		// base
		DB: dataDir,

		// mains
		Surface: filepath.Join(dataDir, "surface"),

		// state
		State: statePath,
		Tmp:   filepath.Join(statePath, "tmp"),
		Tel:   filepath.Join(statePath, "telemetry"),
		Logs:  filepath.Join(statePath, "logs"),
		Crash: filepath.Join(statePath, "crash"),
	}
}

// Convenience helpers
func SurfacePath(dataDir string) string { return PathsFor(dataDir).Surface }
func StatePath(dataDir string) string   { return PathsFor(dataDir).State }
func TmpPath(dataDir string) string     { return PathsFor(dataDir).Tmp }
func TelPath(dataDir string) string     { return PathsFor(dataDir).Tel }
func LogsPath(dataDir string) string    { return PathsFor(dataDir).Logs }
func CrashPath(dataDir string) string   { return PathsFor(dataDir).Crash }
