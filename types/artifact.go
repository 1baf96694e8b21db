package types

// ArtifactKind describes the file format of a produced artifact.
type ArtifactKind string

const (
	ArtifactXML  ArtifactKind = "xml"
	ArtifactJSON ArtifactKind = "json"
	ArtifactHTML ArtifactKind = "html"
	ArtifactText ArtifactKind = "txt"
	ArtifactCSV  ArtifactKind = "csv"
)

// ArtifactSpec declares an artifact a stage is expected to produce.
// Paths are relative to the reports directory and are part of the CI
// contract; downstream steps reference them verbatim.
type ArtifactSpec struct {
	Name        string       `yaml:"name"`
	Path        string       `yaml:"path"`
	Kind        ArtifactKind `yaml:"kind"`
	Stage       StageID      `yaml:"stage,omitempty"`
	Description string       `yaml:"description,omitempty"`
}

// ArtifactStatus is the aggregator's view of one expected artifact.
type ArtifactStatus struct {
	Spec    ArtifactSpec
	Present bool
	Size    int64
}

// StateText renders the aggregator status for the artifact. Missing
// artifacts are reported as pending rather than failing the run.
func (a ArtifactStatus) StateText() string {
	if a.Present {
		return "produced"
	}
	return "pending"
}
