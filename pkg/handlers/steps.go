package handlers

// Step sentinels open every task list; they mark "nothing to roll back to".
const (
	StepStartImport   = "start_import"
	StepStartCopy     = "start_copy"
	StepStartRollback = "start_rollback"
)

// Dispatch names of the pipeline tasks. Task lists store these strings verbatim.
const (
	TaskImportOrchestrator        = "importer.import_orchestrator"
	TaskImportResource            = "importer.import_resource"
	TaskPublishResource           = "importer.publish_resource"
	TaskCreateResource            = "importer.create_geonode_resource"
	TaskCopyResource              = "importer.copy_geonode_resource"
	TaskCopyDynamicModel          = "importer.copy_dynamic_model"
	TaskCopyDataTable             = "importer.copy_geonode_data_table"
	TaskCopyRasterFile            = "importer.copy_raster_file"
	TaskCreateDynamicStructure    = "importer.create_dynamic_structure"
	TaskImportWithOgr2ogr         = "importer.import_with_ogr2ogr"
	TaskImportNextStep            = "importer.import_next_step"
	TaskImportMetadata            = "importer.import_metadata"
	TaskRollback                  = "importer.rollback"
	TaskDynamicModelErrorCallback = "dynamic_model_error_callback"
)

// Task lists shared by several handlers.
var (
	VectorImportSteps = []string{StepStartImport, TaskImportResource, TaskPublishResource, TaskCreateResource}
	VectorCopySteps   = []string{StepStartCopy, TaskCopyResource, TaskCopyDynamicModel, TaskCopyDataTable, TaskPublishResource}
	RollbackSteps     = []string{StepStartRollback, TaskRollback}
)

// IsSentinel reports whether step is the no-op marker heading a task list.
func IsSentinel(step string) bool {
	return step == StepStartImport || step == StepStartCopy || step == StepStartRollback
}
