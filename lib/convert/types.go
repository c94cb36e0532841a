package convert

// Request asks for one container image to be converted into a bootable raw
// disk image. Zero values take the documented defaults.
type Request struct {
	ImageRef   string `json:"image_ref"`
	OutputName string `json:"output_name,omitempty"`
	SizeMiB    int64  `json:"disk_size_mb,omitempty"`
	Filesystem string `json:"filesystem_type,omitempty"`
}

const (
	DefaultOutputName = "bootable_system.img"
	DefaultSizeMiB    = 2048
	DefaultFilesystem = "ext4"

	// ArtifactExt is the extension finished images carry in the output dir.
	ArtifactExt = ".img"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusInfo    = "info"
)

// Stage identifies where in the pipeline a conversion failed.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageExport     Stage = "export"
	StageAllocate   Stage = "allocate"
	StageBind       Stage = "bind"
	StageFormat     Stage = "format"
	StageMount      Stage = "mount"
	StagePopulate   Stage = "populate"
	StageBootstrap  Stage = "bootstrap"
	StageInit       Stage = "init"
	StageBootloader Stage = "bootloader"
	StageFinalize   Stage = "finalize"
)

// Criticality says whether a failing stage aborts the conversion or is
// recorded as a warning while the pipeline continues.
type Criticality int

const (
	Fatal Criticality = iota
	BestEffort
)

// stageCriticality is the single source of the abort-vs-continue policy.
// Resource releases are governed separately by the guard stack and are
// always best-effort.
var stageCriticality = map[Stage]Criticality{
	StageValidate:   Fatal,
	StageExport:     Fatal,
	StageAllocate:   Fatal,
	StageBind:       Fatal,
	StageFormat:     Fatal,
	StageMount:      Fatal,
	StagePopulate:   Fatal,
	StageBootstrap:  BestEffort,
	StageInit:       Fatal,
	StageBootloader: Fatal,
	StageFinalize:   Fatal,
}

// Result is the structured outcome of a conversion. Status is always set;
// Stage, Command and Detail are populated on error.
type Result struct {
	Status     string `json:"status"`
	OutputPath string `json:"output_path,omitempty"`
	SizeMiB    int64  `json:"size_mb,omitempty"`
	ImageRef   string `json:"image_ref"`
	Filesystem string `json:"filesystem_type"`
	Message    string `json:"message,omitempty"`

	Stage   Stage  `json:"stage,omitempty"`
	Command string `json:"command,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Artifact describes one finished image in the output directory.
type Artifact struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	SizeMiB  int64  `json:"size_mb"`
}

// PurgeResult reports the outcome of purging the output directory. Status
// is "info" when there was nothing to remove.
type PurgeResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
