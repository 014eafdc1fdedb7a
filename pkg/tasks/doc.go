// Package tasks implements the pipeline tasks run by the workers.
//
// Every task receives the execution id as its first positional argument. The remaining layouts are:
//
//	importer.import_orchestrator      exec, handler_key, step, layer, alternate, action
//	importer.import_resource          exec, handler_key, action
//	importer.import_metadata          exec, handler_key, action
//	importer.publish_resource         exec, step, layer, alternate, handler_key, action
//	importer.create_geonode_resource  exec, step, layer, alternate, handler_key, action
//	importer.copy_geonode_resource    exec, step, layer, alternate, handler_key, action
//	importer.copy_dynamic_model       exec, step, layer, alternate, handler_key, action
//	importer.copy_geonode_data_table  exec, step, layer, alternate, handler_key, action
//	importer.copy_raster_file         exec, step, layer, alternate, handler_key, action
//	importer.create_dynamic_structure exec, schema_id, overwrite, alternate  (kwargs: fields)
//	importer.import_with_ogr2ogr      exec, original_name, handler_key, overwrite, alternate
//	importer.import_next_step         exec, handler_key, actual_step, layer, alternate
//	importer.rollback                 exec, handler_key, action  (kwargs: rollback_from_step, action_to_rollback, instance_name)
//	dynamic_model_error_callback      the arguments of the failed task
//
// Copy steps carry original_dataset_alternate and new_dataset_alternate in their kwargs.
package tasks
