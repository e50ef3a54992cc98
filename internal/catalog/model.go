package catalog

// ModuleRow is the stored shape of a module.
type ModuleRow struct {
	ID       int64  `json:"id" validate:"gt=0"`
	Name     string `json:"name" validate:"required"`
	ParentID *int64 `json:"parent_id,omitempty" validate:"omitempty,gt=0"`
}

// CommandRow is the stored shape of a command.
type CommandRow struct {
	ID       int64  `json:"id" validate:"gt=0"`
	Name     string `json:"name" validate:"required"`
	ModuleID *int64 `json:"module_id,omitempty" validate:"omitempty,gt=0"`
}

// RoleRow is the stored shape of a role with its grants.
type RoleRow struct {
	ID           int64    `json:"id" validate:"gt=0"`
	Name         string   `json:"name" validate:"required"`
	SuperManager bool     `json:"super_manager"`
	Authorities  []string `json:"authorities"`
	CommandIDs   []int64  `json:"command_ids"`
}
