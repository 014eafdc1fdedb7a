package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE execution_requests (
				exec_id VARCHAR(255) PRIMARY KEY,
				user_name VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				func_name VARCHAR(255) NOT NULL DEFAULT '',
				step VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('ready', 'running', 'finished', 'failed')),
				action VARCHAR(50) NOT NULL DEFAULT 'import',
				input_params JSONB NOT NULL DEFAULT '{}',
				output_params JSONB NOT NULL DEFAULT '{}',
				log TEXT NOT NULL DEFAULT '',
				resource_id VARCHAR(255) NOT NULL DEFAULT '',
				created TIMESTAMP WITH TIME ZONE NOT NULL,
				last_updated TIMESTAMP WITH TIME ZONE NOT NULL,
				finished TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_execution_requests_user_status ON execution_requests(user_name, status);

			CREATE TABLE resources (
				id VARCHAR(255) PRIMARY KEY,
				alternate VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				title VARCHAR(255) NOT NULL DEFAULT '',
				owner VARCHAR(255) NOT NULL,
				workspace VARCHAR(255) NOT NULL DEFAULT '',
				store VARCHAR(255) NOT NULL DEFAULT '',
				resource_type VARCHAR(50) NOT NULL,
				subtype VARCHAR(50) NOT NULL DEFAULT '',
				source_type VARCHAR(50) NOT NULL DEFAULT '',
				files JSONB NOT NULL DEFAULT '[]',
				dirty_state BOOLEAN NOT NULL DEFAULT false,
				srid VARCHAR(50) NOT NULL DEFAULT '',
				bbox JSONB NOT NULL DEFAULT '[]',
				bbox_srid VARCHAR(50) NOT NULL DEFAULT '',
				xml_file TEXT NOT NULL DEFAULT '',
				metadata_uploaded BOOLEAN NOT NULL DEFAULT false,
				sld_file TEXT NOT NULL DEFAULT '',
				sld_uploaded BOOLEAN NOT NULL DEFAULT false,
				links JSONB NOT NULL DEFAULT '[]',
				thumbnail_url TEXT NOT NULL DEFAULT '',
				detail_url TEXT NOT NULL DEFAULT '',
				created TIMESTAMP WITH TIME ZONE NOT NULL,
				last_updated TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE UNIQUE INDEX idx_resources_alternate ON resources(alternate);
			CREATE INDEX idx_resources_owner ON resources(owner);
			CREATE INDEX idx_resources_title ON resources(title);

			CREATE TABLE resource_handler_infos (
				id VARCHAR(255) PRIMARY KEY,
				resource_id VARCHAR(255) NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
				handler_module_path VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255) NOT NULL DEFAULT '',
				kwargs JSONB NOT NULL DEFAULT '{}',
				created TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_resource_handler_infos_resource ON resource_handler_infos(resource_id);
			CREATE INDEX idx_resource_handler_infos_execution ON resource_handler_infos(execution_id);
		`,
		2: `
			CREATE TABLE model_schemas (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL UNIQUE,
				db_name VARCHAR(255) NOT NULL,
				db_table_name VARCHAR(255) NOT NULL,
				managed BOOLEAN NOT NULL DEFAULT false
			);

			CREATE TABLE field_schemas (
				id VARCHAR(255) PRIMARY KEY,
				model_schema_id VARCHAR(255) NOT NULL REFERENCES model_schemas(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				class_name VARCHAR(255) NOT NULL,
				kwargs JSONB NOT NULL DEFAULT '{}',
				UNIQUE(model_schema_id, name)
			);

			CREATE TABLE task_results (
				task_id VARCHAR(255) PRIMARY KEY,
				task_name VARCHAR(255) NOT NULL,
				parent_id VARCHAR(255) NOT NULL DEFAULT '',
				execution_id VARCHAR(255) NOT NULL DEFAULT '',
				task_args JSONB NOT NULL DEFAULT '[]',
				task_kwargs JSONB NOT NULL DEFAULT '{}',
				status VARCHAR(20) NOT NULL,
				result TEXT NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				retries INT NOT NULL DEFAULT 0,
				date_created TIMESTAMP WITH TIME ZONE NOT NULL,
				date_done TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_task_results_execution ON task_results(execution_id);
			CREATE INDEX idx_task_results_created ON task_results(date_created);
		`,
		3: `
			-- Legacy progress records mirrored for older clients
			CREATE TABLE uploads (
				exec_id VARCHAR(255) PRIMARY KEY,
				id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				state VARCHAR(50) NOT NULL,
				user_name VARCHAR(255) NOT NULL,
				complete BOOLEAN NOT NULL DEFAULT false,
				metadata JSONB NOT NULL DEFAULT '{}',
				created TIMESTAMP WITH TIME ZONE NOT NULL,
				updated TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
