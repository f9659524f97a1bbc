package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v2"
)

type PushTrigger struct {
	Branches []string `yaml:"branches,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
}

type Trigger struct {
	Push        PushTrigger `yaml:"push,omitempty"`
	PullRequest struct{}    `yaml:"pull_request"`
}

type Args map[string]interface{}

type Step struct {
	Name string `yaml:"name,omitempty"`
	If   string `yaml:"if,omitempty"`
	Uses string `yaml:"uses,omitempty"`
	ID   string `yaml:"id,omitempty"`
	Run  string `yaml:"run,omitempty"`
	With Args   `yaml:"with,omitempty"`
}

type Job struct {
	RunsOn string   `yaml:"runs-on"`
	Needs  []string `yaml:"needs,omitempty"`
	If     string   `yaml:"if,omitempty"`
	Steps  []Step   `yaml:"steps"`
}

type Workflow struct {
	Name string         `yaml:"name"`
	On   Trigger        `yaml:"on,omitempty"`
	Jobs map[string]Job `yaml:"jobs"`
}

// Target is one binary to build on tagged pushes.
type Target struct {
	// The package path relative to the repo root, e.g. `./cmd/ext2img`.
	Package string

	// The name of the binary; platform suffixes are added per build.
	Name string

	// GOOS/GOARCH pairs to cross compile for.
	Platforms [][2]string
}

func WorkflowCI(goVersion string, targets ...*Target) Workflow {
	jobs := map[string]Job{"test": JobTest(goVersion)}
	for _, target := range targets {
		jobs["release-"+target.Name] = JobRelease(goVersion, target)
	}
	return Workflow{
		Name: "ci",
		On: Trigger{
			Push: PushTrigger{
				Branches: []string{"*"},
				Tags:     []string{"v*"},
			},
		},
		Jobs: jobs,
	}
}

func setupSteps(goVersion string) []Step {
	return []Step{{
		Name: "Checkout",
		Uses: "actions/checkout@v4",
	}, {
		Name: "Set up Go",
		Uses: "actions/setup-go@v5",
		With: Args{"go-version": goVersion},
	}}
}

func JobTest(goVersion string) Job {
	return Job{
		RunsOn: "ubuntu-latest",
		Steps: append(setupSteps(goVersion), Step{
			Name: "Vet",
			Run:  "go vet ./...",
		}, Step{
			Name: "Test",
			Run:  "go test -race ./...",
		}),
	}
}

func JobRelease(goVersion string, target *Target) Job {
	steps := setupSteps(goVersion)
	for _, platform := range target.Platforms {
		goos, goarch := platform[0], platform[1]
		steps = append(steps, Step{
			Name: fmt.Sprintf("Build %s/%s", goos, goarch),
			Run: fmt.Sprintf(
				"CGO_ENABLED=0 GOOS=%s GOARCH=%s go build -trimpath "+
					"-o dist/%s-%s-%s %s",
				goos,
				goarch,
				target.Name,
				goos,
				goarch,
				target.Package,
			),
		})
	}
	steps = append(steps, Step{
		Name: "Upload",
		Uses: "actions/upload-artifact@v4",
		With: Args{"name": target.Name, "path": "dist/"},
	})
	return Job{
		RunsOn: "ubuntu-latest",
		Needs:  []string{"test"},
		If:     "startsWith(github.ref, 'refs/tags/')",
		Steps:  steps,
	}
}

func MarshalToWriter(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling to YAML: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing YAML: %w", err)
	}
	return nil
}

func main() {
	if err := MarshalToWriter(
		os.Stdout,
		WorkflowCI("1.21", &Target{
			Package: "./cmd/ext2img",
			Name:    "ext2img",
			Platforms: [][2]string{
				{"linux", "amd64"},
				{"linux", "arm64"},
				{"darwin", "arm64"},
			},
		}),
	); err != nil {
		log.Fatalf("marshaling ci workflow: %v", err)
	}
}
