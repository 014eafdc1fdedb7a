package models

// ModelSchema is the relational table definition backing one imported layer.
type ModelSchema struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DBName      string `json:"db_name"`
	DBTableName string `json:"db_table_name"`
	Managed     bool   `json:"managed"`
}

// FieldSchema is one typed column of a ModelSchema.
type FieldSchema struct {
	ID            string `json:"id"`
	ModelSchemaID string `json:"model_schema_id"`
	Name          string `json:"name"`
	ClassName     string `json:"class_name"`
	Kwargs        Params `json:"kwargs,omitempty"`
}
