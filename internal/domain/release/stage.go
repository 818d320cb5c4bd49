package release

// Stage names one step of the release pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageResolve       Stage = "resolve version"
	StageValidate      Stage = "validate manifest"
	StagePrepare       Stage = "prepare environment"
	StageBuild         Stage = "build bundle"
	StageAssemble      Stage = "assemble artifacts"
	StageArchive       Stage = "archive output"
	StageCreateRelease Stage = "create release"
	StageUploadAsset   Stage = "upload asset"
)

// Stages returns every stage in execution order.
func Stages() []Stage {
	return []Stage{
		StageResolve,
		StageValidate,
		StagePrepare,
		StageBuild,
		StageAssemble,
		StageArchive,
		StageCreateRelease,
		StageUploadAsset,
	}
}
