package ci

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// The release pipeline is declarative configuration executed elsewhere; the
// only thing this package does is verify the structural facts the pipeline
// relies on: job ordering, artifact name and directory agreement, trigger
// scoping and deployment environment gating.

// Workflow models the subset of a GitHub-Actions-style workflow document
// needed for release pipeline checks.
type Workflow struct {
	Name string         `yaml:"name"`
	On   yaml.Node      `yaml:"on"`
	Jobs map[string]Job `yaml:"jobs"`
}

// Job is one workflow job.
type Job struct {
	Needs       StringList  `yaml:"needs"`
	Environment Environment `yaml:"environment"`
	Steps       []Step      `yaml:"steps"`
}

// Step is one job step.
type Step struct {
	Name string   `yaml:"name"`
	Uses string   `yaml:"uses"`
	Run  string   `yaml:"run"`
	With StepArgs `yaml:"with"`
}

// StepArgs holds a step's "with" arguments as raw strings, whatever scalar
// type the document used.
type StepArgs map[string]string

func (a *StepArgs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return goerr.New("expected a mapping of step arguments")
	}
	m := make(map[string]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		m[node.Content[i].Value] = node.Content[i+1].Value
	}
	*a = m
	return nil
}

// StringList accepts both a scalar and a sequence of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = StringList(items)
		return nil
	default:
		return goerr.New("expected string or list of strings")
	}
}

// Contains reports whether the list holds s.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Environment accepts both a bare environment name and a name/url mapping.
type Environment struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

func (e *Environment) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.Name = node.Value
		return nil
	}

	type plain Environment
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Environment(p)
	return nil
}

// Trigger is one event the workflow runs on.
type Trigger struct {
	Event string
	Types []string
}

// Triggers interprets the "on" node, which may be a scalar, a sequence of
// event names, or a mapping of event name to spec.
func (w *Workflow) Triggers() ([]Trigger, error) {
	node := w.On
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			return nil, nil
		}
		return []Trigger{{Event: node.Value}}, nil

	case yaml.SequenceNode:
		var events []string
		if err := node.Decode(&events); err != nil {
			return nil, goerr.Wrap(err, "invalid trigger list")
		}
		triggers := make([]Trigger, 0, len(events))
		for _, ev := range events {
			triggers = append(triggers, Trigger{Event: ev})
		}
		return triggers, nil

	case yaml.MappingNode:
		var triggers []Trigger
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			var spec struct {
				Types []string `yaml:"types"`
			}
			if key.Value != "" && node.Content[i+1].Kind == yaml.MappingNode {
				if err := node.Content[i+1].Decode(&spec); err != nil {
					return nil, goerr.Wrap(err, "invalid trigger spec: "+key.Value)
				}
			}
			triggers = append(triggers, Trigger{Event: key.Value, Types: spec.Types})
		}
		return triggers, nil

	case 0:
		return nil, nil

	default:
		return nil, goerr.New("unsupported trigger declaration")
	}
}

// Load reads and parses a workflow document from path.
func Load(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read workflow file")
	}
	return Parse(data)
}

// Parse parses a workflow document.
func Parse(data []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, goerr.Wrap(err, "failed to parse workflow document")
	}
	return &w, nil
}

// Violation is one failed structural check.
type Violation struct {
	Check   string
	Message string
}

func (v Violation) String() string {
	return v.Check + ": " + v.Message
}

const (
	uploadAction   = "actions/upload-artifact"
	downloadAction = "actions/download-artifact"
)

// VerifyRelease checks the structural facts a two-stage build/publish release
// pipeline depends on and returns every violation found:
//
//  1. the publish job declares a dependency on the build job;
//  2. the artifact name uploaded by build equals the name downloaded by publish;
//  3. the build output directory equals both the upload and download path;
//  4. the workflow triggers only on the release "published" event;
//  5. the publish job is gated on a named deployment environment with a URL.
func VerifyRelease(w *Workflow) []Violation {
	var violations []Violation

	violations = append(violations, verifyTrigger(w)...)

	buildName, build := findJobWithStep(w, uploadAction)
	publishName, publish := findJobWithStep(w, downloadAction)

	if build == nil {
		violations = append(violations, Violation{
			Check:   "artifact-upload",
			Message: "no job uploads a build artifact",
		})
	}
	if publish == nil {
		violations = append(violations, Violation{
			Check:   "artifact-download",
			Message: "no job downloads the build artifact",
		})
	}
	if build == nil || publish == nil {
		return violations
	}

	if !publish.Needs.Contains(buildName) {
		violations = append(violations, Violation{
			Check: "job-ordering",
			Message: fmt.Sprintf("job %q does not declare needs: %q; publish may start before build completes",
				publishName, buildName),
		})
	}

	upload := findStep(build, uploadAction)
	download := findStep(publish, downloadAction)

	if upload.With["name"] == "" || upload.With["name"] != download.With["name"] {
		violations = append(violations, Violation{
			Check: "artifact-name",
			Message: fmt.Sprintf("upload artifact name %q does not match download artifact name %q",
				upload.With["name"], download.With["name"]),
		})
	}

	if upload.With["path"] == "" || upload.With["path"] != download.With["path"] {
		violations = append(violations, Violation{
			Check: "artifact-dir",
			Message: fmt.Sprintf("upload path %q does not match download path %q",
				upload.With["path"], download.With["path"]),
		})
	}

	if publish.Environment.Name == "" {
		violations = append(violations, Violation{
			Check:   "environment-gate",
			Message: fmt.Sprintf("job %q is not gated on a named deployment environment", publishName),
		})
	} else if publish.Environment.URL == "" {
		violations = append(violations, Violation{
			Check:   "environment-gate",
			Message: fmt.Sprintf("environment %q has no published-package URL", publish.Environment.Name),
		})
	}

	return violations
}

// verifyTrigger checks that the workflow runs only on release "published"
func verifyTrigger(w *Workflow) []Violation {
	triggers, err := w.Triggers()
	if err != nil {
		return []Violation{{Check: "trigger", Message: err.Error()}}
	}
	if len(triggers) == 0 {
		return []Violation{{Check: "trigger", Message: "workflow declares no trigger"}}
	}

	var violations []Violation
	for _, tr := range triggers {
		if tr.Event != "release" {
			violations = append(violations, Violation{
				Check:   "trigger",
				Message: fmt.Sprintf("unexpected trigger %q; only release/published may start a publish", tr.Event),
			})
			continue
		}
		if len(tr.Types) != 1 || tr.Types[0] != "published" {
			violations = append(violations, Violation{
				Check:   "trigger",
				Message: fmt.Sprintf("release trigger types %v; expected exactly [published]", tr.Types),
			})
		}
	}
	return violations
}

// findJobWithStep returns the first job (by sorted name) containing a step
// whose uses matches the given action.
func findJobWithStep(w *Workflow, action string) (string, *Job) {
	for _, name := range sortedJobNames(w) {
		job := w.Jobs[name]
		if findStep(&job, action) != nil {
			return name, &job
		}
	}
	return "", nil
}

// findStep returns the first step of job whose uses references action
func findStep(job *Job, action string) *Step {
	for i := range job.Steps {
		if strings.HasPrefix(job.Steps[i].Uses, action+"@") || job.Steps[i].Uses == action {
			return &job.Steps[i]
		}
	}
	return nil
}

func sortedJobNames(w *Workflow) []string {
	names := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
