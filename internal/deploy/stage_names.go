package deploy

// StageName is a strongly-typed identifier for a deployment stage. All
// canonical stages are declared as constants here for compile-time safety.
type StageName string

// Canonical stage names, in execution order.
const (
	StageValidate       StageName = "validate"
	StageStageFiles     StageName = "stage_files"
	StageArchive        StageName = "archive"
	StageSessionOpen    StageName = "session_open"
	StageUpload         StageName = "upload"
	StageDeletePrevious StageName = "delete_previous"
	StageImport         StageName = "import"
	StageMetadata       StageName = "metadata_update"
)

// StageDef pairs a stage name with its executing function (internal wiring helper).
type StageDef struct {
	Name StageName
	Fn   Stage
}
