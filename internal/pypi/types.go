package pypi

import (
	"sort"
	"time"
)

const uploadTimeLayout = "2006-01-02T15:04:05"

// Project is the decoded body of the registry's per-project JSON document.
type Project struct {
	Info     Info              `json:"info"`
	Releases map[string][]File `json:"releases"`
}

// Info carries the metadata block for the project's latest release.
type Info struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Summary        string   `json:"summary"`
	RequiresDist   []string `json:"requires_dist"`
	RequiresPython string   `json:"requires_python"`
}

// File describes one uploaded distribution file of a release.
type File struct {
	Filename      string            `json:"filename"`
	URL           string            `json:"url"`
	PackageType   string            `json:"packagetype"`
	PythonVersion string            `json:"python_version"`
	Size          int64             `json:"size"`
	UploadTime    string            `json:"upload_time"`
	Yanked        bool              `json:"yanked"`
	Digests       map[string]string `json:"digests"`
}

// Release is the per-version view derived from the releases map: the version
// string, the earliest upload timestamp across its files (zero when the
// release carries no files), and whether every file was yanked.
type Release struct {
	Version   string
	Published time.Time
	Yanked    bool
}

// ReleaseList flattens the releases map into a deterministic slice ordered by
// version string. Version-aware ordering is the resolver's concern; the stable
// string order here only keeps output and tests reproducible.
func (p *Project) ReleaseList() []Release {
	out := make([]Release, 0, len(p.Releases))
	for version, files := range p.Releases {
		release := Release{Version: version, Yanked: len(files) > 0}
		for _, file := range files {
			if !file.Yanked {
				release.Yanked = false
			}
			ts, err := time.Parse(uploadTimeLayout, file.UploadTime)
			if err != nil {
				continue
			}
			if release.Published.IsZero() || ts.Before(release.Published) {
				release.Published = ts
			}
		}
		out = append(out, release)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}
