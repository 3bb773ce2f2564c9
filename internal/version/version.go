// Package version хранит сведения о сборке. Значения задаются через
// -ldflags "-X github.com/alcosklad/alcoapp-sub000/internal/version.version=...",
// без них commit и дата берутся из VCS-данных go build.
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

const unknown = "unknown"

var (
	version = "dev"
	commit  = unknown
	date    = unknown

	resolveOnce sync.Once
)

// resolve дополняет незаданные commit и date из debug.BuildInfo.
func resolve() {
	resolveOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		applyBuildSettings(info.Settings)
	})
}

func applyBuildSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if commit == unknown && s.Value != "" {
				commit = s.Value
				if len(commit) > 12 {
					commit = commit[:12]
				}
			}
		case "vcs.time":
			if date == unknown && s.Value != "" {
				date = s.Value
			}
		}
	}
}

// Info версия, commit и дата сборки.
func Info() (v, c, d string) {
	resolve()
	return version, commit, date
}

func GetVersion() string { return version }

func GetCommit() string {
	resolve()
	return commit
}

func GetDate() string {
	resolve()
	return date
}

func String() string {
	v, c, d := Info()
	return fmt.Sprintf("version=%s commit=%s date=%s", v, c, d)
}
